package observability

type Metrics interface {
	ObserveResolve(source string, durMs float64)
	ObserveGateway(gateway string, ok bool, durMs float64)
	ObserveUpload(ok bool, durMs float64)
	ObserveHTTP(method, route string, status int, durMs float64)
	ObserveKafka(processMs float64, ok bool)
	IncCacheHit()
	IncCacheMiss()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) ObserveResolve(string, float64)           {}
func (Noop) ObserveGateway(string, bool, float64)     {}
func (Noop) ObserveUpload(bool, float64)              {}
func (Noop) ObserveHTTP(string, string, int, float64) {}
func (Noop) ObserveKafka(float64, bool)               {}
func (Noop) IncCacheHit()                             {}
func (Noop) IncCacheMiss()                            {}
