// Package export produces the CSV report and the data directory backup.
package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"actionboard/internal/domain"
)

var csvHeader = []string{
	"id", "title", "description", "deadline", "overall_status",
	"person", "status", "comment", "justification", "justification_approved",
	"created_by", "created_at",
}

// WriteCSV emits one row per (activity, responsible person), so an
// activity with three people yields three rows sharing the id columns.
func WriteCSV(w io.Writer, activities []domain.Activity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, a := range activities {
		overall := a.Overall()
		for _, p := range a.Responsible {
			ps := a.ResponsibleStatus[p]
			row := []string{
				strconv.Itoa(a.ID), a.Title, a.Description, a.Deadline, overall.Label(),
				p, ps.Status.Label(), ps.Comment, ps.Justification, strconv.FormatBool(ps.JustificationApproved),
				a.CreatedBy, a.CreatedAt,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// Backup zips every file in dataDir into outDir and returns the archive
// path. The name carries a timestamp and a random suffix so repeated
// backups never collide.
func Backup(dataDir, outDir string, now time.Time) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}
	name := fmt.Sprintf("actionboard-%s-%s.zip",
		now.UTC().Format("20060102-150405"), uuid.NewString()[:8])
	path := filepath.Join(outDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)

	err = filepath.WalkDir(dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dataDir, p)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		os.Remove(path)
		return "", fmt.Errorf("archive %s: %w", dataDir, err)
	}
	if err := zw.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("finish archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}
	return path, nil
}
