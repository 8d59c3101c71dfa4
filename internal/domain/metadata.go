package domain

import "strings"

const IPFSScheme = "ipfs://"

type Metadata struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Properties  Properties `json:"properties"`
}

type Properties struct {
	Artist string `json:"artist"`
	Audio  string `json:"audio"`
}

// Document is a resolved CID payload. Body is kept exactly as received.
type Document struct {
	CID         string
	ContentType string
	Body        []byte
}

func (d *Document) IsJSON() bool {
	return IsJSONContentType(d.ContentType)
}

func IsJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "application/json")
}

func IPFSURI(cid string) string { return IPFSScheme + cid }

// CIDFromURI strips the ipfs:// scheme. Anything else is returned trimmed.
func CIDFromURI(uri string) string {
	return strings.TrimPrefix(strings.TrimSpace(uri), IPFSScheme)
}
