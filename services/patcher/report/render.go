// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/tdm/vuln-patcher/pkg/ux"
	"github.com/tdm/vuln-patcher/services/patcher/advisory"
)

// Render writes the summary as an aligned, styled table. Machine
// personality gets tab-separated lines instead.
func (s *Summary) Render(w io.Writer) {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		s.renderMachine(w)
		return
	}

	mode := ""
	if s.DryRun {
		mode = " (dry run)"
	}
	fmt.Fprintln(w, ux.Styles.Title.Render("Run report"))
	fmt.Fprintln(w, ux.Styles.Muted.Render(fmt.Sprintf(
		"target %s, sources %s%s", s.Target, strings.Join(s.Sources, " "), mode)))

	nameW, actionW := 0, 0
	for _, e := range s.Entries {
		if len(e.Advisory) > nameW {
			nameW = len(e.Advisory)
		}
		if len(e.Action) > actionW {
			actionW = len(e.Action)
		}
	}

	for _, e := range s.Entries {
		icon := entryIcon(e).Render()
		if detail := entryDetail(e); detail != "" {
			fmt.Fprintf(w, "%s %-*s  %-*s  %s\n",
				icon, nameW, e.Advisory, actionW, string(e.Action),
				ux.Styles.Muted.Render(detail))
		} else {
			fmt.Fprintf(w, "%s %-*s  %s\n", icon, nameW, e.Advisory, string(e.Action))
		}
	}

	t := s.Totals
	fmt.Fprintf(w, "\n%s %s  %s %s  %s %s  %s %s\n",
		ux.Styles.Success.Render(fmt.Sprintf("%d", t.Applied)), ux.Styles.Muted.Render("applied"),
		ux.Styles.Warning.Render(fmt.Sprintf("%d", t.Skipped)), ux.Styles.Muted.Render("skipped"),
		ux.Styles.Error.Render(fmt.Sprintf("%d", t.Failed)), ux.Styles.Muted.Render("failed"),
		ux.Styles.Bold.Render(fmt.Sprintf("%d", t.Total)), ux.Styles.Muted.Render("total"),
	)
}

func (s *Summary) renderMachine(w io.Writer) {
	for _, e := range s.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			entryIcon(e), e.Advisory, e.Action, entryDetail(e))
	}
	t := s.Totals
	fmt.Fprintf(w, "SUMMARY: applied=%d can_apply=%d skipped=%d failed=%d out_of_scope=%d total=%d\n",
		t.Applied, t.CanApply, t.Skipped, t.Failed, t.OutOfScope, t.Total)
}

func entryIcon(e Entry) ux.Icon {
	switch {
	case e.Action == advisory.StatusCanApply:
		return ux.IconPending
	case e.Applied:
		return ux.IconSuccess
	case e.Resolution == ResolutionSkipped || e.Action == advisory.StatusSkipped:
		return ux.IconSkipped
	case e.Action == advisory.StatusCannotApply:
		return ux.IconError
	default:
		return ux.IconPending
	}
}

func entryDetail(e Entry) string {
	switch {
	case e.Reason != "" && e.Resolution != "":
		return e.Reason + "; operator: " + e.Resolution
	case e.Resolution != "":
		return "operator: " + e.Resolution
	default:
		return e.Reason
	}
}
