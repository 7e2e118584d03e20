// Package blobstore holds content-addressed storage for certificate payloads.
package blobstore

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"certledger/internal/credential/models"
)

// rawPrefix matches what `ipfs add --cid-version=1` yields for single-block files.
var rawPrefix = cid.NewPrefixV1(cid.Raw, mh.SHA2_256)

// ComputeCID returns the CIDv1 (raw codec, sha2-256) of payload.
func ComputeCID(payload []byte) (string, error) {
	c, err := rawPrefix.Sum(payload)
	if err != nil {
		return "", fmt.Errorf("compute cid: %w", err)
	}
	return c.String(), nil
}

// ValidateCID reports whether contentID parses as a CID.
func ValidateCID(contentID string) error {
	if _, err := cid.Decode(contentID); err != nil {
		return fmt.Errorf("invalid content id %q: %w", contentID, err)
	}
	return nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// MFSPath builds the browsable location <dir>/<certId>-<fileName>.
func MFSPath(dir string, hint models.StoreHint) string {
	name := path.Base(strings.ReplaceAll(hint.FileName, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "certificate"
	}
	if dir == "" {
		dir = "/certs"
	}
	return path.Join("/", dir, hint.CertID.String()+"-"+name)
}
