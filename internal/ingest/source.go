package ingest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/awehrman/peas/internal/engine"
)

type ProcessSourceInput struct {
	ImportID  string `json:"importId" validate:"required"`
	NoteID    string `json:"noteId" validate:"required"`
	SourceURL string `json:"sourceUrl"`
}

// NewProcessSourceAction resolves the note's attribution: normalizes the
// captured source URL and stores the canonical form. Notes without any
// source stay untouched.
func NewProcessSourceAction() engine.Action {
	return &engine.TypedAction[ProcessSourceInput]{
		ActionName: "process_source",
		Run: func(ctx context.Context, in ProcessSourceInput, d *engine.Deps, actx *engine.ActionContext) (engine.JobData, error) {
			svc, err := servicesFrom(d)
			if err != nil {
				return nil, err
			}

			if in.SourceURL == "" {
				return engine.JobData{"sourceResolved": false}, nil
			}

			normalized, site, err := NormalizeSource(in.SourceURL)
			if err != nil {
				// a broken source url is attribution noise, not a reason
				// to fail the import
				if d.Logger != nil {
					d.Logger.WarnContext(ctx, "unusable source url",
						"import_id", in.ImportID,
						"source", in.SourceURL,
						"err", err,
					)
				}
				return engine.JobData{"sourceResolved": false}, nil
			}

			if err := svc.Notes.SetSource(ctx, in.NoteID, normalized); err != nil {
				return nil, fmt.Errorf("set source: %w", err)
			}

			return engine.JobData{
				"sourceResolved": true,
				"sourceUrl":      normalized,
				"sourceSite":     site,
			}, nil
		},
	}
}

// NormalizeSource canonicalizes a captured source reference: scheme
// defaulted to https, tracking query params dropped, host lowercased.
// Returns the canonical URL and the bare site name.
func NormalizeSource(raw string) (normalized, site string, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", "", fmt.Errorf("empty source")
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", "", err
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("source has no host: %q", raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// strip tracking noise
	q := u.Query()
	for key := range q {
		if strings.HasPrefix(key, "utm_") || key == "fbclid" || key == "gclid" {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	site = strings.TrimPrefix(u.Host, "www.")

	return u.String(), site, nil
}
