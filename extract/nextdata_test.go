package extract

import (
	"fmt"
	"testing"
)

func nextDataPage(apolloData string) string {
	return fmt.Sprintf(
		`<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{"apolloState":{"data":%s}}}</script></body></html>`,
		apolloData)
}

func TestNextDataJSON(t *testing.T) {
	html := nextDataPage(`{"a":1}`)
	data, err := NextDataJSON(html, "#__NEXT_DATA__")
	if err != nil {
		t.Fatalf("NextDataJSON failed: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("empty next-data")
	}

	if _, err := NextDataJSON("<html><body></body></html>", "#__NEXT_DATA__"); err != ErrNoNextData {
		t.Errorf("expected ErrNoNextData, got %v", err)
	}
}

func TestCategories(t *testing.T) {
	html := nextDataPage(`{
		"ROOT_QUERY": {"ignored": true},
		"CategoryV2:top1": {
			"__typename": "CategoryV2", "id": "top1", "title": "크리에이티브", "depth": 0,
			"children": [{"__ref": "CategoryV2:c1"}, {"__ref": "CategoryV2:c2"}]
		},
		"CategoryV2:c1": {"__typename": "CategoryV2", "id": "c1", "title": "드로잉", "depth": 1, "children": []},
		"CategoryV2:c2": {"__typename": "CategoryV2", "id": "c2", "title": "공예", "depth": 1, "children": []}
	}`)
	nextData, err := NextDataJSON(html, "#__NEXT_DATA__")
	if err != nil {
		t.Fatalf("NextDataJSON failed: %v", err)
	}
	cats, err := Categories(nextData)
	if err != nil {
		t.Fatalf("Categories failed: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(cats))
	}
	if cats[0].CategoryID0 != "top1" || cats[0].Title0 != "크리에이티브" {
		t.Errorf("unexpected parent fields: %+v", cats[0])
	}
	if cats[0].CategoryID != "c1" || cats[0].Title != "드로잉" {
		t.Errorf("unexpected child fields: %+v", cats[0])
	}
	if cats[1].CategoryID != "c2" {
		t.Errorf("unexpected second child: %+v", cats[1])
	}
}

func TestSubCategoriesDropsAllBucket(t *testing.T) {
	html := nextDataPage(`{
		"CategoryV2:all": {"__typename": "CategoryV2", "id": "all", "title": "전체", "depth": 1},
		"CategoryV2:s1": {"__typename": "CategoryV2", "id": "s1", "title": "연필 드로잉", "depth": 1},
		"CategoryV2:s2": {"__typename": "CategoryV2", "id": "s2", "title": "수채화", "depth": 1}
	}`)
	nextData, err := NextDataJSON(html, "#__NEXT_DATA__")
	if err != nil {
		t.Fatalf("NextDataJSON failed: %v", err)
	}
	subs, err := SubCategories(nextData, "top1")
	if err != nil {
		t.Fatalf("SubCategories failed: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 subcategories, got %d", len(subs))
	}
	if subs[0].CategoryID != "s1" || subs[1].CategoryID != "s2" {
		t.Errorf("first entry not dropped: %+v", subs)
	}
	for _, s := range subs {
		if s.AncestorID != "top1" {
			t.Errorf("ancestorId = %q, want top1", s.AncestorID)
		}
	}
}

func TestSubCategoriesSingleEntryKept(t *testing.T) {
	html := nextDataPage(`{
		"CategoryV2:only": {"__typename": "CategoryV2", "id": "only", "title": "전체", "depth": 1}
	}`)
	nextData, _ := NextDataJSON(html, "#__NEXT_DATA__")
	subs, err := SubCategories(nextData, "top1")
	if err != nil {
		t.Fatalf("SubCategories failed: %v", err)
	}
	if len(subs) != 1 || subs[0].CategoryID != "only" {
		t.Errorf("single entry should be kept: %+v", subs)
	}
}

func TestProducts(t *testing.T) {
	payload := []byte(`{"data":{"categoryProductsV3":{"edges":[
		{"node":{"_id":"p1","title":"드로잉 클래스","coverImageUrl":"https://cdn.example.net/images/img9.webp",
			"klassId":"k1","likedCount":42,"firestoreId":"f1",
			"category":{"id":"c1","title":"드로잉"},
			"author":{"_id":"a1","displayName":"김작가"}}}
	]}}}`)
	products, err := Products(payload)
	if err != nil {
		t.Fatalf("Products failed: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	p := products[0]
	if p.ProductID != "p1" || p.KlassID != "k1" || p.ImageID != "img9" {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.CategoryID != "c1" || p.AuthorName != "김작가" || p.LikedCount != 42 {
		t.Errorf("unexpected product fields: %+v", p)
	}
}
