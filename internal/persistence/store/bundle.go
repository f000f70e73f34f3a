package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const bundleSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "sessions", "chat_logs", "brains"],
  "properties": {
    "version": {"type": "integer"},
    "exported_at": {"type": "string"},
    "sessions": {
      "type": "array",
      "items": {"type": "object", "required": ["id", "participants", "state", "chat_log_id"]}
    },
    "chat_logs": {
      "type": "array",
      "items": {"type": "object", "required": ["id"]}
    },
    "brains": {
      "type": "array",
      "items": {"type": "object", "required": ["entity_id"]}
    }
  }
}`

var bundleSchema = jsonschema.MustCompileString("bundle.schema.json", bundleSchemaJSON)

// DecodeBundle validates raw JSON against the bundle schema and the version
// tag, failing fast before any record could be written.
func DecodeBundle(raw []byte) (Bundle, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Bundle{}, fmt.Errorf("bundle: parse: %w", err)
	}
	if err := bundleSchema.Validate(doc); err != nil {
		return Bundle{}, fmt.Errorf("bundle: schema: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return Bundle{}, fmt.Errorf("bundle: decode: %w", err)
	}
	if b.Version != BundleVersion {
		return Bundle{}, fmt.Errorf("%w: got %d want %d", ErrUnsupportedVersion, b.Version, BundleVersion)
	}
	return b, nil
}

// ImportJSON validates and applies a raw bundle.
func ImportJSON(s Store, raw []byte) error {
	b, err := DecodeBundle(raw)
	if err != nil {
		return err
	}
	return s.Import(b)
}

// WriteBundleFile writes the bundle as JSON, zstd-compressed when the path
// ends in .zst.
func WriteBundleFile(path string, b Bundle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if !strings.HasSuffix(path, ".zst") {
		if err := json.NewEncoder(f).Encode(b); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	if err := json.NewEncoder(enc).Encode(b); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadBundleFile reads and validates a bundle file, decompressing when the
// path ends in .zst.
func ReadBundleFile(path string) (Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return Bundle{}, err
	}
	defer f.Close()
	var raw []byte
	if strings.HasSuffix(path, ".zst") {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return Bundle{}, err
		}
		defer dec.Close()
		raw, err = io.ReadAll(dec)
		if err != nil {
			return Bundle{}, err
		}
	} else {
		raw, err = io.ReadAll(f)
		if err != nil {
			return Bundle{}, err
		}
	}
	return DecodeBundle(raw)
}
