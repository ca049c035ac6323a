// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package feed

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/tdm/vuln-patcher/services/patcher/advisory"
)

// Wire format. The feed serves two XML documents: a list of advisory
// ids and a per-advisory detail record. Text fields arrive wrapped in
// literal double quotes.

type listDoc struct {
	Entries []listEntry `xml:",any"`
}

type listEntry struct {
	ID string `xml:"id,attr"`
}

type detailDoc struct {
	Name       *string    `xml:"name"`
	VersionMin *string    `xml:"version_min"`
	VersionMax *string    `xml:"version_max"`
	Source     *string    `xml:"source"`
	Comments   *string    `xml:"comments"`
	PatchList  *patchList `xml:"patch_list"`
}

type patchList struct {
	Patches []patchElem `xml:"patch"`
}

type patchElem struct {
	Version string `xml:"version,attr"`
	Ref     string `xml:",chardata"`
}

// dequote strips one pair of surrounding double quotes from a feed
// text field.
func dequote(s string) string {
	if !strings.HasPrefix(s, `"`) || !strings.HasSuffix(s, `"`) {
		return s
	}
	if len(s) == 1 {
		// A lone quote both starts and ends itself.
		return ""
	}
	return s[1 : len(s)-1]
}

// parseList extracts advisory ids from a list document, in document
// order.
func parseList(data []byte) ([]string, error) {
	var doc listDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: list document: %v", ErrParseFailed, err)
	}

	ids := make([]string, 0, len(doc.Entries))
	for i, e := range doc.Entries {
		id := dequote(e.ID)
		if id == "" {
			return nil, fmt.Errorf("%w: list entry %d has no id", ErrParseFailed, i)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseDetail converts a detail document into advisory parameters.
// Every field the schema names must be present; empty values are
// allowed and mean what they mean downstream (unbounded versions, no
// source restriction).
func parseDetail(data []byte) (advisory.Params, error) {
	var doc detailDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return advisory.Params{}, fmt.Errorf("%w: detail document: %v", ErrParseFailed, err)
	}

	for _, field := range []struct {
		name string
		ok   bool
	}{
		{"name", doc.Name != nil},
		{"version_min", doc.VersionMin != nil},
		{"version_max", doc.VersionMax != nil},
		{"source", doc.Source != nil},
		{"comments", doc.Comments != nil},
		{"patch_list", doc.PatchList != nil},
	} {
		if !field.ok {
			return advisory.Params{}, fmt.Errorf("%w: detail document missing <%s>", ErrParseFailed, field.name)
		}
	}

	params := advisory.Params{
		Name:       dequote(*doc.Name),
		VersionMin: dequote(*doc.VersionMin),
		VersionMax: dequote(*doc.VersionMax),
		Source:     dequote(*doc.Source),
		Comments:   dequote(*doc.Comments),
	}
	for _, p := range doc.PatchList.Patches {
		params.Patches = append(params.Patches, advisory.PatchRef{
			Version: dequote(p.Version),
			Ref:     dequote(p.Ref),
		})
	}
	return params, nil
}
