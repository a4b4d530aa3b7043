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

package badger

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/poiesic/newsrag/core"
)

// Key prefixes for different data types.
// Every prefix ends with ':' so that no prefix is a prefix of another.
const (
	documentPrefix       = "doc:"
	documentDatePrefix   = "docd:"
	documentLinkPrefix   = "doclnk:"
	textEmbeddingPrefix  = "emb:t:"
	imageEmbeddingPrefix = "emb:i:"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeDocumentDateKey generates a composite key for the date index.
// Format: prefix:invertedTimestamp:id
// The timestamp is inverted so that a forward scan yields newest documents first.
func makeDocumentDateKey(publishedAt time.Time, id string) []byte {
	prefixBytes := []byte(documentDatePrefix)
	buf := make([]byte, len(prefixBytes)+8+len(id))
	offset := copy(buf, prefixBytes)
	micros := publishedAt.UnixMicro()
	if micros < 0 {
		micros = 0 // undated documents sort last
	}
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], math.MaxUint64-uint64(micros))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makeDocumentLinkKey generates a key for the link index.
func makeDocumentLinkKey(link string) []byte {
	return []byte(documentLinkPrefix + core.ContentHash(link))
}

// embeddingPrefix returns the key prefix shared by every record of kind.
func embeddingPrefix(kind core.Kind) ([]byte, error) {
	switch kind {
	case core.KindText:
		return []byte(textEmbeddingPrefix), nil
	case core.KindImage:
		return []byte(imageEmbeddingPrefix), nil
	default:
		return nil, fmt.Errorf("unknown embedding kind %q", kind)
	}
}

// makeEmbeddingKey generates the key of an embedding record.
// Format: emb:t:documentID for text, emb:i:documentID:hash(url) for images.
func makeEmbeddingKey(key core.EmbeddingKey) ([]byte, error) {
	prefix, err := embeddingPrefix(key.Kind)
	if err != nil {
		return nil, err
	}
	if key.Kind == core.KindImage {
		return append(prefix, key.DocumentID+":"+core.ContentHash(key.ImageURL)...), nil
	}
	return append(prefix, key.DocumentID...), nil
}

// makeCheckpointKey generates a key for pass checkpoints.
func makeCheckpointKey(pass string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", pass))
}
