package itinerary

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// Saver writes finished itineraries as markdown files under a directory.
type Saver struct {
	dir    string
	now    func() time.Time
	create func(path string) (file, error)
}

type file interface {
	WriteString(s string) (int, error)
	Close() error
}

// NewSaver creates a Saver rooted at dir. The directory is created on first save.
func NewSaver(dir string) *Saver {
	return &Saver{dir: dir, now: time.Now, create: createExclusive}
}

func createExclusive(path string) (file, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

// Dir returns the output directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Save writes content for destination and returns the file path.
func (s *Saver) Save(content, destination string) (string, error) {
	destination = strings.TrimSpace(destination)
	if strings.TrimSpace(content) == "" {
		return "", errors.User(errors.CodeInvalidInput, "itinerary_content is empty")
	}
	if destination == "" {
		return "", errors.User(errors.CodeInvalidInput, "destination is required")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create itinerary directory", errors.CategorySystem)
	}

	now := s.now()
	name := fmt.Sprintf("%s_%s.md", FileStem(destination), now.Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	doc := fmt.Sprintf("# Travel Itinerary for %s\n\n%s\n\n---\n\n**Generated by:** AI Travel Agent\n**Created on:** %s\n\n*Happy Travels!*\n",
		destination, strings.TrimSpace(content), now.Format("January 02, 2006 at 03:04 PM"))

	// O_EXCL so two saves in the same second never clobber each other
	f, err := s.create(path)
	for i := 2; err != nil && os.IsExist(err) && i < 100; i++ {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%d.md", strings.TrimSuffix(name, ".md"), i))
		f, err = s.create(path)
	}
	if err != nil {
		return "", errors.Wrap(err, errors.CodeFileWriteFailed, "failed to create itinerary file", errors.CategorySystem)
	}

	if _, err := f.WriteString(doc); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, errors.CodeFileWriteFailed, "failed to write itinerary", errors.CategorySystem)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, errors.CodeFileWriteFailed, "failed to flush itinerary", errors.CategorySystem)
	}
	return path, nil
}

// FileStem keeps letters, digits, spaces, dashes and underscores, then turns
// spaces into underscores.
func FileStem(destination string) string {
	var b strings.Builder
	for _, r := range destination {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	stem := strings.ReplaceAll(strings.TrimSpace(b.String()), " ", "_")
	if stem == "" {
		return "itinerary"
	}
	return stem
}
