package services

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/pageresizer/internal/docstore"
	"github.com/Lllllllleong/pageresizer/internal/models"
)

var (
	letterBox = docstore.Box{URX: 612, URY: 792}
	a4Box     = docstore.Box{URX: 595.276, URY: 841.89}
)

type pageSpec struct {
	box   docstore.Box
	delay time.Duration // slept inside ScalePage
	err   error         // returned by PageBox
}

// fakeStore hands out in-memory documents keyed by base name. Names it does
// not know open as a single letter-sized page.
type fakeStore struct {
	mu       sync.Mutex
	docs     map[string][]pageSpec
	broken   map[string]error
	writeErr map[string]error
	opened   map[string]*fakeDoc
	order    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[string][]pageSpec{},
		broken:   map[string]error{},
		writeErr: map[string]error{},
		opened:   map[string]*fakeDoc{},
	}
}

func (s *fakeStore) Open(path string) (docstore.Document, error) {
	name := filepath.Base(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, name)
	if err, ok := s.broken[name]; ok {
		return nil, err
	}
	specs, ok := s.docs[name]
	if !ok {
		specs = []pageSpec{{box: letterBox}}
	}
	d := &fakeDoc{name: name, writeErr: s.writeErr[name]}
	for _, p := range specs {
		d.pages = append(d.pages, &fakePage{spec: p, box: p.box})
	}
	s.opened[name] = d
	return d, nil
}

func (s *fakeStore) doc(name string) *fakeDoc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened[name]
}

func (s *fakeStore) openOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

type fakePage struct {
	spec   pageSpec
	box    docstore.Box
	sx, sy float64
}

type fakeDoc struct {
	name     string
	pages    []*fakePage
	ops      []string
	writeErr error
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) PageBox(i int) (docstore.Box, error) {
	p := d.pages[i]
	if p.spec.err != nil {
		return docstore.Box{}, p.spec.err
	}
	return p.box, nil
}

func (d *fakeDoc) ScalePage(i int, sx, sy float64) error {
	p := d.pages[i]
	time.Sleep(p.spec.delay)
	p.sx, p.sy = sx, sy
	d.ops = append(d.ops, fmt.Sprintf("scale %d", i))
	return nil
}

func (d *fakeDoc) SetPageBox(i int, box docstore.Box) error {
	d.pages[i].box = box
	d.ops = append(d.ops, fmt.Sprintf("box %d", i))
	return nil
}

func (d *fakeDoc) Write(w io.Writer) error {
	if d.writeErr != nil {
		return d.writeErr
	}
	for _, p := range d.pages {
		if _, err := fmt.Fprintf(w, "%g %g\n", p.box.Width(), p.box.Height()); err != nil {
			return err
		}
	}
	return nil
}

// recorder is a ProgressObserver that keeps every callback.
type recorder struct {
	total    int
	done     []string
	finished *models.RunReport
	onDone   func(done int)
}

func (r *recorder) Started(_ string, total int) { r.total = total }

func (r *recorder) DocumentDone(res models.DocumentResult, done, _ int) {
	r.done = append(r.done, res.Document.Name)
	if r.onDone != nil {
		r.onDone(done)
	}
}

func (r *recorder) Finished(report *models.RunReport) { r.finished = report }
