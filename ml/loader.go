package ml

import "sync"

// Loader reads the model artifact exactly once per process lifetime. The
// first Load caches the resulting handle or error; later calls return the
// cached outcome without touching the file again, so a failed load stays
// failed until the process restarts.
type Loader struct {
	path  string
	once  sync.Once
	model *Ensemble
	err   error
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) Load() (*Ensemble, error) {
	l.once.Do(func() {
		l.model, l.err = LoadEnsemble(l.path)
	})
	return l.model, l.err
}

// Model returns the cached handle, or nil when no model is available.
func (l *Loader) Model() *Ensemble {
	model, _ := l.Load()
	return model
}

func (l *Loader) Err() error {
	_, err := l.Load()
	return err
}

func (l *Loader) Available() bool {
	return l.Model() != nil
}

func (l *Loader) Path() string {
	return l.path
}
