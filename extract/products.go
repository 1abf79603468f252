package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"coursekit/catalog"
)

type productsPayload struct {
	Data struct {
		CategoryProductsV3 struct {
			Edges []struct {
				Node productNode `json:"node"`
			} `json:"edges"`
		} `json:"categoryProductsV3"`
	} `json:"data"`
}

type productNode struct {
	ID            string `json:"_id"`
	Title         string `json:"title"`
	CoverImageURL string `json:"coverImageUrl"`
	KlassID       string `json:"klassId"`
	LikedCount    int    `json:"likedCount"`
	FirestoreID   string `json:"firestoreId"`
	Category      struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"category"`
	Author struct {
		ID          string `json:"_id"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
}

// Products decodes one page of the catalog listing payload into product
// records. An empty edge list yields an empty slice, not an error.
func Products(payload []byte) ([]catalog.Product, error) {
	var p productsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decoding products payload: %w", err)
	}

	out := make([]catalog.Product, 0, len(p.Data.CategoryProductsV3.Edges))
	for _, edge := range p.Data.CategoryProductsV3.Edges {
		n := edge.Node
		out = append(out, catalog.Product{
			ProductID:     n.ID,
			Title:         n.Title,
			ImageID:       imageID(n.CoverImageURL),
			KlassID:       n.KlassID,
			LikedCount:    n.LikedCount,
			FirestoreID:   n.FirestoreID,
			CategoryID:    n.Category.ID,
			CategoryTitle: n.Category.Title,
			AuthorID:      n.Author.ID,
			AuthorName:    n.Author.DisplayName,
		})
	}
	return out, nil
}

// imageID derives the image identifier from a cover image URL: the final
// path segment stripped of its extension. Missing URLs yield an empty ID.
func imageID(coverURL string) string {
	if coverURL == "" {
		return ""
	}
	last := coverURL[strings.LastIndexByte(coverURL, '/')+1:]
	if dot := strings.IndexByte(last, '.'); dot >= 0 {
		last = last[:dot]
	}
	return last
}
