package media

import "fmt"

// Kind identifies what a stream carries
type Kind string

const (
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindCombined Kind = "combined"
)

// StreamDescriptor is one downloadable stream with its mirrors
type StreamDescriptor struct {
	URL        string
	BackupURLs []string
	Kind       Kind
	Quality    int
	Bandwidth  int64
}

// Candidates returns the primary URL followed by the backups, skipping blanks
func (s StreamDescriptor) Candidates() []string {
	urls := make([]string, 0, 1+len(s.BackupURLs))
	if s.URL != "" {
		urls = append(urls, s.URL)
	}
	for _, u := range s.BackupURLs {
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func (s StreamDescriptor) String() string {
	return fmt.Sprintf("%s q=%d bw=%d (+%d backup)", s.Kind, s.Quality, s.Bandwidth, len(s.BackupURLs))
}

// DownloadedFile is a stream saved to local storage
type DownloadedFile struct {
	Path string
	Kind Kind
	Size int64
}
