// Package extract maps page markup to structured catalog records. All
// functions here are pure: markup in, records out. Selector sets come from
// the configuration, never from constants buried in logic.
package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"coursekit/catalog"
)

// ErrNoNextData is returned when a page carries no embedded data script.
var ErrNoNextData = errors.New("next-data script not found")

// NextDataJSON extracts the embedded page-data JSON blob from markup.
func NextDataJSON(html string, selector string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, ErrNoNextData
	}
	text := sel.First().Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoNextData
	}
	return []byte(text), nil
}

// apolloEntry is one key/value pair of the page's normalized object cache,
// in document order. Order matters: the first CategoryV2 entry on a
// category page is the synthetic "all" bucket that callers drop.
type apolloEntry struct {
	Key   string
	Value json.RawMessage
}

type categoryValue struct {
	Typename string `json:"__typename"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	Depth    int    `json:"depth"`
	Children []struct {
		Ref string `json:"__ref"`
	} `json:"children"`
}

// apolloEntries walks props.apolloState.data preserving key order.
// encoding/json maps randomize order, so the object is token-scanned.
func apolloEntries(nextData []byte) ([]apolloEntry, error) {
	var envelope struct {
		Props struct {
			ApolloState struct {
				Data json.RawMessage `json:"data"`
			} `json:"apolloState"`
		} `json:"props"`
	}
	if err := json.Unmarshal(nextData, &envelope); err != nil {
		return nil, fmt.Errorf("decoding next-data envelope: %w", err)
	}
	raw := envelope.Props.ApolloState.Data
	if len(raw) == 0 {
		return nil, errors.New("next-data has no apollo state")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("apollo state is not an object")
	}

	var entries []apolloEntry
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("apollo state key is not a string")
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		entries = append(entries, apolloEntry{Key: key, Value: val})
	}
	return entries, nil
}

// Categories extracts the two-level category taxonomy from the catalog
// page's embedded data: depth-0 categories with their children resolved
// through cache references.
func Categories(nextData []byte) ([]catalog.Category, error) {
	entries, err := apolloEntries(nextData)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]json.RawMessage, len(entries))
	for _, e := range entries {
		byKey[e.Key] = e.Value
	}

	var out []catalog.Category
	for _, e := range entries {
		var v categoryValue
		if err := json.Unmarshal(e.Value, &v); err != nil {
			continue // non-object cache entries (scalars, lists)
		}
		if v.Typename != "CategoryV2" || v.Depth != 0 {
			continue
		}
		for _, child := range v.Children {
			childID := strings.TrimPrefix(child.Ref, "CategoryV2:")
			raw, ok := byKey["CategoryV2:"+childID]
			if !ok {
				continue
			}
			var cv categoryValue
			if err := json.Unmarshal(raw, &cv); err != nil {
				continue
			}
			out = append(out, catalog.Category{
				CategoryID0: v.ID,
				Title0:      v.Title,
				CategoryID:  cv.ID,
				Title:       SanitizeName(cv.Title),
			})
		}
	}
	return out, nil
}

// SubCategories extracts the flattened child list of one category page.
// The first entry is the synthetic "all" bucket and is dropped whenever
// real children exist.
func SubCategories(nextData []byte, ancestorID string) ([]catalog.SubCategory, error) {
	entries, err := apolloEntries(nextData)
	if err != nil {
		return nil, err
	}

	var out []catalog.SubCategory
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, "CategoryV2:") {
			continue
		}
		var v categoryValue
		if err := json.Unmarshal(e.Value, &v); err != nil {
			continue
		}
		out = append(out, catalog.SubCategory{
			AncestorID: ancestorID,
			CategoryID: v.ID,
			Title:      v.Title,
		})
	}
	if len(out) > 1 {
		out = out[1:]
	}
	return out, nil
}
