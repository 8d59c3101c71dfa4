package chain

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/hyperledger/firefly-signer/pkg/abi"
)

//go:embed abi/*.json
var abiFiles embed.FS

var (
	musicNFTABI    = mustLoadABI("abi/musicnft.json")
	marketplaceABI = mustLoadABI("abi/marketplace.json")
	erc20ABI       = mustLoadABI("abi/erc20.json")
)

func mustLoadABI(path string) abi.ABI {
	b, err := abiFiles.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var a abi.ABI
	if err := json.Unmarshal(b, &a); err != nil {
		panic(fmt.Sprintf("parse %s: %v", path, err))
	}
	return a
}

func mustFunction(a abi.ABI, name string) *abi.Entry {
	fn := a.Functions()[name]
	if fn == nil {
		panic(fmt.Sprintf("function %q missing from ABI", name))
	}
	return fn
}

func mustEvent(a abi.ABI, name string) *abi.Entry {
	ev := a.Events()[name]
	if ev == nil {
		panic(fmt.Sprintf("event %q missing from ABI", name))
	}
	return ev
}

func serializer() *abi.Serializer {
	return abi.NewSerializer().
		SetFormattingMode(abi.FormatAsObjects).
		SetIntSerializer(abi.Base10StringIntSerializer).
		SetByteSerializer(abi.HexByteSerializer0xPrefix)
}
