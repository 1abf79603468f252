package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Store reads and writes the flat JSON documents under a single root
// directory. Collections are always rewritten in full; there are no
// partial-record patches.
type Store struct {
	root string
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on first save.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's root directory.
func (s *Store) Root() string { return s.root }

// Path returns the absolute path of a document inside the store.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, name)
}

// load decodes a document into v. A missing or undecodable document leaves
// v untouched: both mean an empty collection, never a hard failure. The
// next save rewrites the file whole anyway.
func (s *Store) load(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// Undecodable content is dropped, not fatal.
	_ = json.Unmarshal(data, v)
	return nil
}

// save rewrites a document from v.
func (s *Store) save(name string, v any) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Categories returns the two-level category list.
func (s *Store) Categories() ([]Category, error) {
	var out []Category
	err := s.load("categories.json", &out)
	return out, err
}

// SaveCategories rewrites the category list.
func (s *Store) SaveCategories(cs []Category) error {
	return s.save("categories.json", cs)
}

// SubCategories returns the flattened subcategory list.
func (s *Store) SubCategories() ([]SubCategory, error) {
	var out []SubCategory
	err := s.load("subCategories.json", &out)
	return out, err
}

// SaveSubCategories rewrites the subcategory list.
func (s *Store) SaveSubCategories(cs []SubCategory) error {
	return s.save("subCategories.json", cs)
}

// Products returns the product listing.
func (s *Store) Products() ([]Product, error) {
	var out []Product
	err := s.load("products.json", &out)
	return out, err
}

// SaveProducts rewrites the product listing.
func (s *Store) SaveProducts(ps []Product) error {
	return s.save("products.json", ps)
}

// ClassIDs returns the tracked class IDs.
func (s *Store) ClassIDs() ([]string, error) {
	var out []string
	err := s.load("myclassIds.json", &out)
	return out, err
}

// SaveClassIDs rewrites the tracked class ID list.
func (s *Store) SaveClassIDs(ids []string) error {
	return s.save("myclassIds.json", ids)
}

// MyClasses returns the purchased class records.
func (s *Store) MyClasses() ([]MyClass, error) {
	var out []MyClass
	err := s.load("myclasses.json", &out)
	return out, err
}

// SaveMyClasses rewrites the purchased class records.
func (s *Store) SaveMyClasses(cs []MyClass) error {
	return s.save("myclasses.json", cs)
}

// Lectures returns the lecture array of a class.
func (s *Store) Lectures(classID string) ([]Lecture, error) {
	var out []Lecture
	err := s.load(filepath.Join("classes", classID+".json"), &out)
	return out, err
}

// SaveLectures rewrites the lecture array of a class.
func (s *Store) SaveLectures(classID string, ls []Lecture) error {
	return s.save(filepath.Join("classes", classID+".json"), ls)
}

// RedownLectures returns the re-download worklist.
func (s *Store) RedownLectures() ([]RedownLecture, error) {
	var out []RedownLecture
	err := s.load("redownLectures.json", &out)
	return out, err
}

// SaveRedownLectures rewrites the re-download worklist.
func (s *Store) SaveRedownLectures(ls []RedownLecture) error {
	return s.save("redownLectures.json", ls)
}

// NoInfoClassIDs returns class IDs with no matching product, kept for
// manual follow-up.
func (s *Store) NoInfoClassIDs() ([]string, error) {
	var out []string
	err := s.load("noInfoClassIds.json", &out)
	return out, err
}

// SaveNoInfoClassIDs rewrites the no-product follow-up list.
func (s *Store) SaveNoInfoClassIDs(ids []string) error {
	return s.save("noInfoClassIds.json", ids)
}

// SaveDiagnostic rewrites a named diagnostic snapshot (overlapped lectures,
// repair worklists and the like). The name is a store-relative file name.
func (s *Store) SaveDiagnostic(name string, v any) error {
	return s.save(name, v)
}

// LoadDiagnostic reads a named diagnostic snapshot into v; missing
// snapshots leave v untouched.
func (s *Store) LoadDiagnostic(name string, v any) error {
	return s.load(name, v)
}

// HasRaw reports whether a raw snapshot exists.
func (s *Store) HasRaw(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// LoadRaw reads a raw snapshot back.
func (s *Store) LoadRaw(name string) ([]byte, error) {
	return os.ReadFile(s.Path(name))
}

// SaveRaw writes a raw byte snapshot (page-embedded JSON and the like).
func (s *Store) SaveRaw(name string, data []byte) error {
	path := s.Path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
