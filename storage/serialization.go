// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	com "github.com/mus-format/common-go"
	"github.com/mus-format/mus-go"
	slops "github.com/mus-format/mus-go/options/slice"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/newsrag/core"
)

// embeddingFormatV1 is the current layout of an embedding record:
//
//	version(raw byte) kind(raw byte) createdAt(varint unix nanos)
//	documentID, imageURL, model(ord strings) vector(ord slice of raw float32)
const embeddingFormatV1 byte = 1

const (
	kindCodeText  byte = 1
	kindCodeImage byte = 2
)

// maxVectorLength bounds decoded vector lengths so corrupt data cannot force huge allocations.
const maxVectorLength = 4096

var vectorMUS = ord.NewValidSliceSer[float32](raw.Float32,
	slops.WithLenValidator[float32](com.ValidatorFn[int](func(n int) error {
		if n > maxVectorLength {
			return fmt.Errorf("vector length %d exceeds %d", n, maxVectorLength)
		}
		return nil
	})))

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalCheckpoint serializes a Checkpoint to bytes.
func MarshalCheckpoint(checkpoint *core.Checkpoint) ([]byte, error) {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalCheckpoint deserializes a Checkpoint from bytes.
func UnmarshalCheckpoint(data []byte) (*core.Checkpoint, error) {
	var checkpoint core.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &checkpoint, nil
}

// MarshalEmbedding serializes an Embedding to its compact binary form.
func MarshalEmbedding(e *core.Embedding) ([]byte, error) {
	var kind byte
	switch e.Kind {
	case core.KindText:
		kind = kindCodeText
	case core.KindImage:
		kind = kindCodeImage
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrSerializationFailed, e.Kind)
	}
	createdAt := e.CreatedAt.UnixNano()

	size := raw.Byte.Size(embeddingFormatV1) + raw.Byte.Size(kind) +
		varint.Int64.Size(createdAt) +
		ord.String.Size(e.DocumentID) + ord.String.Size(e.ImageURL) + ord.String.Size(e.Model) +
		vectorMUS.Size(e.Vector)
	buf := make([]byte, size)

	n := raw.Byte.Marshal(embeddingFormatV1, buf)
	n += raw.Byte.Marshal(kind, buf[n:])
	n += varint.Int64.Marshal(createdAt, buf[n:])
	n += ord.String.Marshal(e.DocumentID, buf[n:])
	n += ord.String.Marshal(e.ImageURL, buf[n:])
	n += ord.String.Marshal(e.Model, buf[n:])
	vectorMUS.Marshal(e.Vector, buf[n:])
	return buf, nil
}

// UnmarshalEmbedding deserializes an Embedding from its binary form.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	version, n, err := raw.Byte.Unmarshal(data)
	if err != nil {
		return nil, decodeError(err)
	}
	if version != embeddingFormatV1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	kind, n1, err := raw.Byte.Unmarshal(data[n:])
	if err != nil {
		return nil, decodeError(err)
	}
	n += n1

	e := &core.Embedding{}
	switch kind {
	case kindCodeText:
		e.Kind = core.KindText
	case kindCodeImage:
		e.Kind = core.KindImage
	default:
		return nil, fmt.Errorf("%w: unknown kind code %d", ErrSerializationFailed, kind)
	}

	createdAt, n1, err := varint.Int64.Unmarshal(data[n:])
	if err != nil {
		return nil, decodeError(err)
	}
	n += n1
	e.CreatedAt = time.Unix(0, createdAt).UTC()

	for _, field := range []*string{&e.DocumentID, &e.ImageURL, &e.Model} {
		*field, n1, err = ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, decodeError(err)
		}
		n += n1
	}

	if e.Vector, _, err = vectorMUS.Unmarshal(data[n:]); err != nil {
		return nil, decodeError(err)
	}
	return e, nil
}

// MarshalVector serializes a bare vector (length prefix + raw float32 values).
func MarshalVector(v []float32) []byte {
	buf := make([]byte, vectorMUS.Size(v))
	vectorMUS.Marshal(v, buf)
	return buf
}

// UnmarshalVector deserializes a vector written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, n, err := vectorMUS.Unmarshal(data)
	if err != nil {
		return nil, decodeError(err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return v, nil
}

func decodeError(err error) error {
	if errors.Is(err, mus.ErrTooSmallByteSlice) {
		return ErrTruncatedData
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}
