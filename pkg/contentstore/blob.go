package contentstore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// BlobStore keeps gzip-compressed payloads and alignment outputs on
// disk, sharded by the first two hash characters so no directory grows
// unbounded.
type BlobStore struct {
	root string
}

// NewBlobStore prepares the blob directories under root
func NewBlobStore(root string) (*BlobStore, error) {
	for _, dir := range []string{"objects", "outputs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("creating blob dir: %w", err)
		}
	}
	return &BlobStore{root: root}, nil
}

// HashOf returns the lowercase hex SHA-256 of a payload
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (bs *BlobStore) payloadPath(hash string) string {
	return filepath.Join(bs.root, "objects", hash[:2], hash+".gz")
}

// WritePayload stores a payload under its hash. Writing the same hash
// twice is a no-op, which makes crash-retry of Submit safe.
func (bs *BlobStore) WritePayload(hash string, data []byte) error {
	path := bs.payloadPath(hash)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeAtomic(path, data)
}

// ReadPayload returns the original payload bytes for a hash
func (bs *BlobStore) ReadPayload(hash string) ([]byte, error) {
	return readCompressed(bs.payloadPath(hash))
}

// WriteOutput stores an alignment output and returns its ref, the
// path recorded on the content record
func (bs *BlobStore) WriteOutput(hash string, data []byte) (string, error) {
	ref := filepath.Join("outputs", hash[:2], hash+".json.gz")
	if err := writeAtomic(filepath.Join(bs.root, ref), data); err != nil {
		return "", err
	}
	return ref, nil
}

// ReadOutput returns the alignment output for a ref
func (bs *BlobStore) ReadOutput(ref string) ([]byte, error) {
	return readCompressed(filepath.Join(bs.root, ref))
}

// writeAtomic compresses into a temp file and renames it into place so
// readers never observe a partial blob
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating shard dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".blob-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	gz := gzip.NewWriter(tmp)
	if _, err := gz.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("compressing blob: %w", err)
	}
	if err := gz.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flushing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp blob: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("setting blob mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("placing blob: %w", err)
	}
	return nil
}

func readCompressed(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening blob: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decompressing blob: %w", err)
	}
	defer gz.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gz); err != nil {
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return buf.Bytes(), nil
}
