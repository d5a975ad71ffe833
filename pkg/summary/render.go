package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"shardscan/models"
)

// MemberLine is one row of the aggregate: a user and their latest counts.
type MemberLine struct {
	UserID string                   `json:"user_id"`
	Name   string                   `json:"name"`
	Counts map[models.ShardType]int `json:"counts"`
}

// Page is one rendered section of the pinned summary message.
type Page struct {
	Index  int      `json:"index"`
	Header string   `json:"header"`
	Lines  []string `json:"lines"`
	Footer string   `json:"footer"`
}

// Render builds the paged content of a weekly summary from the latest
// snapshot per member. Members sort by display name ascending, ties broken
// by user id ascending, so successive renders are stable.
func Render(groupID, weekKey string, snapshots []models.Snapshot, pageSize int, now time.Time) ([]Page, map[models.ShardType]int) {
	if pageSize <= 0 {
		pageSize = 10
	}
	members := make([]MemberLine, 0, len(snapshots))
	totals := make(map[models.ShardType]int, len(models.DisplayOrder))
	for _, snap := range snapshots {
		counts := snap.Counts()
		for st, v := range counts {
			totals[st] += v
		}
		name := snap.UserName
		if name == "" {
			name = snap.UserID
		}
		members = append(members, MemberLine{UserID: snap.UserID, Name: name, Counts: counts})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name != members[j].Name {
			return members[i].Name < members[j].Name
		}
		return members[i].UserID < members[j].UserID
	})

	pageCount := (len(members) + pageSize - 1) / pageSize
	if pageCount == 0 {
		pageCount = 1
	}
	updated := now.UTC().Format(time.RFC3339)
	pages := make([]Page, 0, pageCount)
	for p := 0; p < pageCount; p++ {
		lo := p * pageSize
		hi := lo + pageSize
		if hi > len(members) {
			hi = len(members)
		}
		lines := make([]string, 0, hi-lo)
		for _, m := range members[lo:hi] {
			lines = append(lines, formatMemberLine(m))
		}
		pages = append(pages, Page{
			Index:  p,
			Header: fmt.Sprintf("Shard totals — %s (page %d/%d)", weekKey, p+1, pageCount),
			Lines:  lines,
			Footer: fmt.Sprintf("%d members · updated %s", len(members), updated),
		})
	}
	return pages, totals
}

func formatMemberLine(m MemberLine) string {
	parts := make([]string, 0, len(models.DisplayOrder))
	for _, st := range models.DisplayOrder {
		parts = append(parts, fmt.Sprintf("%s %d", st.String(), m.Counts[st]))
	}
	return fmt.Sprintf("%s — %s", m.Name, strings.Join(parts, " · "))
}

// EncodePages serializes pages into the artifact's stored form.
func EncodePages(pages []Page) (string, error) {
	b, err := json.Marshal(pages)
	if err != nil {
		return "", fmt.Errorf("encode pages: %w", err)
	}
	return string(b), nil
}

// DecodePages restores pages from an artifact row.
func DecodePages(s string) ([]Page, error) {
	if s == "" {
		return nil, nil
	}
	var pages []Page
	if err := json.Unmarshal([]byte(s), &pages); err != nil {
		return nil, fmt.Errorf("decode pages: %w", err)
	}
	return pages, nil
}
