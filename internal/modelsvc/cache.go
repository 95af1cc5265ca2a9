package modelsvc

import (
	"os"
	"path/filepath"

	"github.com/MiFaceDEV/facecore/internal/enrollment"
	"github.com/MiFaceDEV/facecore/internal/ipc"
)

func (s *Service) enrollmentPath(username string) string {
	return filepath.Join(s.enrollmentDir, username+".json")
}

// handleGetEncodings implements spec §4.1's get_encodings: consult the
// cache, reload atomically under the service lock on miss or staleness
// (current file mtime != cached mtime), and return null if no enrollment
// exists for the user.
func (s *Service) handleGetEncodings(req *ipc.Request) *ipc.Response {
	path := s.enrollmentPath(req.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	currentMtime, statErr := enrollment.Mtime(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			delete(s.cache, req.Username)
			return &ipc.Response{} // Encodings == nil signals "null"
		}
		s.log.WithError(statErr).Warn("stat enrollment file")
		return &ipc.Response{Error: "enrollment_corrupt"}
	}

	entry, cached := s.cache[req.Username]
	if cached && entry.SourceMtime.Equal(currentMtime) {
		s.stats.cacheHits++
		return &ipc.Response{Encodings: encodingsPayload(entry)}
	}

	s.stats.cacheMisses++
	fresh, err := enrollment.LoadFile(path)
	if err != nil {
		s.log.WithError(err).Warn("loading enrollment file")
		return &ipc.Response{Error: "enrollment_corrupt"}
	}
	s.cache[req.Username] = fresh
	return &ipc.Response{Encodings: encodingsPayload(fresh)}
}

func (s *Service) handleInvalidate(req *ipc.Request) *ipc.Response {
	s.mu.Lock()
	delete(s.cache, req.Username)
	s.mu.Unlock()
	return &ipc.Response{}
}

func encodingsPayload(entry *enrollment.CacheEntry) *ipc.EncodingsPayload {
	rows := entry.Rows()
	vectors := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		vectors[i] = append([]float64(nil), entry.RowView(i)...)
	}
	meta := make([]ipc.EnrollmentMeta, len(entry.Meta))
	for i, m := range entry.Meta {
		meta[i] = ipc.EnrollmentMeta{Label: m.Label, Time: m.Time}
	}
	return &ipc.EncodingsPayload{
		Vectors:     vectors,
		Meta:        meta,
		SourceMtime: entry.SourceMtime.UnixNano(),
	}
}
