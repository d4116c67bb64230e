package gdrive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/mpetrov/recap/internal/summary"
)

// Syncer backs up the database file and uploads per-session transcripts to a
// Google Drive folder.
type Syncer struct {
	service  *drive.Service
	folderID string

	mu       sync.Mutex
	dbFileID string
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Syncer{
		service:  svc,
		folderID: folderID,
	}, nil
}

// SyncDatabase uploads a snapshot of the database file, updating the same
// remote file on every call.
func (s *Syncer) SyncDatabase(localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	if s.dbFileID != "" {
		if _, err := s.service.Files.Update(s.dbFileID, &drive.File{}).Media(f).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := s.service.Files.Create(&drive.File{
		Name:    "recap-db-backup",
		Parents: []string{s.folderID},
	}).Media(f).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.dbFileID = doc.Id
	return nil
}

// UploadTranscript publishes one finished session as a Drive document.
func (s *Syncer) UploadTranscript(sessionID, fullText string, sum summary.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := renderTranscript(fullText, sum)
	_, err := s.service.Files.Create(&drive.File{
		Name:     fmt.Sprintf("recap-session-%s", sessionID),
		MimeType: "application/vnd.google-apps.document",
		Parents:  []string{s.folderID},
	}).Media(strings.NewReader(body)).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}
	return nil
}

func renderTranscript(fullText string, sum summary.Result) string {
	var b strings.Builder

	if sum.Summary != "" {
		b.WriteString("# Summary\n\n")
		b.WriteString(sum.Summary)
		b.WriteString("\n\n")
	}
	writeSection(&b, "Key Points", sum.KeyPoints)
	writeSection(&b, "Action Items", sum.ActionItems)
	writeSection(&b, "Decisions", sum.Decisions)

	b.WriteString("# Transcript\n\n")
	b.WriteString(fullText)
	b.WriteString("\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString("## " + title + "\n\n")
	for _, item := range items {
		b.WriteString("- " + item + "\n")
	}
	b.WriteString("\n")
}
