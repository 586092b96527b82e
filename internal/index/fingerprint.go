package index

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	kberrors "github.com/kortix-ai/kb-fusion/internal/errors"
	"github.com/kortix-ai/kb-fusion/internal/store"
)

// StatFingerprint captures (mtime, size) without reading content.
// ContentHash is left empty.
func StatFingerprint(path string) (store.Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store.Fingerprint{}, kberrors.Wrap(kberrors.ErrCodeFileNotFound,
				fmt.Errorf("document not found: %s", path))
		}
		return store.Fingerprint{}, kberrors.Wrap(kberrors.ErrCodeFilePermission,
			fmt.Errorf("cannot stat document %s: %w", path, err))
	}
	if info.IsDir() {
		return store.Fingerprint{}, kberrors.New(kberrors.ErrCodeInvalidPath,
			fmt.Sprintf("path is a directory: %s", path), nil)
	}

	return store.Fingerprint{
		MtimeNS: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}, nil
}

// ReadDocument reads the document and returns its content alongside the full
// fingerprint. The fingerprint is taken from a stat before the read; if the
// file changes mid-read the stored fingerprint will mismatch on the next
// lookup and trigger a re-index, which is the safe direction.
func ReadDocument(path string) (string, store.Fingerprint, error) {
	fp, err := StatFingerprint(path)
	if err != nil {
		return "", store.Fingerprint{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", store.Fingerprint{}, kberrors.Wrap(kberrors.ErrCodeFilePermission,
			fmt.Errorf("cannot read document %s: %w", path, err))
	}

	sum := sha256.Sum256(data)
	fp.ContentHash = hex.EncodeToString(sum[:])
	fp.Size = int64(len(data))
	return string(data), fp, nil
}
