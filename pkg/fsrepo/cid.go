package fsrepo

import (
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/pippin-db/pippin/core"
)

// CIDForSum wraps a statesum's already-computed SHA-256 digest as a
// CIDv1/raw multihash string, the same encoding core/storage.go's Pin uses
// for uploaded blobs. Pippin's own wire format never stores this form — it
// writes the raw 32-byte Sum — but it gives logs and the demo CLI's status
// endpoint a single interoperable identifier for a state.
func CIDForSum(sum core.Sum) (string, error) {
	encoded, err := mh.Encode(sum.Bytes(), mh.SHA2_256)
	if err != nil {
		return "", err
	}
	return cid.NewCidV1(cid.Raw, encoded).String(), nil
}
