// Package payload turns an unsealed claim set into the file that is
// delivered downstream.
package payload

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/seftconsumer/internal/common"
)

// Claim names carried by a submission.
const (
	ClaimFile     = "file"
	ClaimFileName = "filename"
	ClaimCaseID   = "case_id"
	ClaimSurveyID = "survey_id"
)

// Claims is the fixed record a submission must carry. Any other claim in the
// token is ignored.
type Claims struct {
	File     string
	FileName string
	CaseID   string
	SurveyID string
}

// Payload is a validated submission with the file already decoded.
type Payload struct {
	DecodedContents []byte
	FileName        string
	CaseID          string
	SurveyID        string
}

// ReadClaims copies the required claims out of a generic claim set.
// A missing, mistyped or empty value fails with common.ErrValidation.
// case_id and survey_id may also arrive as JSON numbers. filename and
// survey_id become path components on delivery, so separators and dot
// names are refused.
func ReadClaims(claims map[string]any) (Claims, error) {
	var c Claims
	fields := []struct {
		name    string
		dst     *string
		numeric bool
		segment bool
	}{
		{name: ClaimFile, dst: &c.File},
		{name: ClaimFileName, dst: &c.FileName, segment: true},
		{name: ClaimCaseID, dst: &c.CaseID, numeric: true},
		{name: ClaimSurveyID, dst: &c.SurveyID, numeric: true, segment: true},
	}
	for _, f := range fields {
		v, ok := claims[f.name]
		if !ok {
			return Claims{}, fmt.Errorf("%w: missing claim %q", common.ErrValidation, f.name)
		}
		var s string
		switch tv := v.(type) {
		case string:
			s = tv
		case json.Number:
			if !f.numeric {
				return Claims{}, fmt.Errorf("%w: claim %q is a number, want string", common.ErrValidation, f.name)
			}
			s = tv.String()
		default:
			return Claims{}, fmt.Errorf("%w: claim %q is %T, want string", common.ErrValidation, f.name, v)
		}
		if s == "" {
			return Claims{}, fmt.Errorf("%w: claim %q is empty", common.ErrValidation, f.name)
		}
		if f.segment && !isPathSegment(s) {
			return Claims{}, fmt.Errorf("%w: claim %q is not a plain name: %q", common.ErrValidation, f.name, s)
		}
		*f.dst = s
	}
	return c, nil
}

// isPathSegment reports whether s names a single directory entry.
func isPathSegment(s string) bool {
	return s != "." && s != ".." && !strings.ContainsAny(s, "/\\\x00")
}

// ExtractFile validates claims and decodes the base64 file body. No partial
// Payload is ever returned.
func ExtractFile(claims map[string]any) (*Payload, error) {
	c, err := ReadClaims(claims)
	if err != nil {
		return nil, err
	}

	contents, err := decodeStd(c.File)
	if err != nil {
		return nil, fmt.Errorf("%w: claim %q: %v", common.ErrValidation, ClaimFile, err)
	}

	return &Payload{
		DecodedContents: contents,
		FileName:        c.FileName,
		CaseID:          c.CaseID,
		SurveyID:        c.SurveyID,
	}, nil
}

// decodeStd decodes standard base64 with or without trailing padding.
func decodeStd(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
