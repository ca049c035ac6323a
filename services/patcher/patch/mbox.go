// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"bytes"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// parseMailbox extracts patch metadata from git-format-patch mbox content.
//
// # Description
//
// The envelope line ("From <commitid> <date>") carries the upstream commit
// id. The RFC 822 headers carry author, date, and subject. The payload's
// unified diff carries the touched file list. A missing envelope or an empty
// subject is ErrParseFailed: the subject is the history-lookup key and a
// record without one can never be reconciled.
func parseMailbox(content []byte) (Metadata, error) {
	envelope, rest, found := bytes.Cut(content, []byte("\n"))
	if !found || !bytes.HasPrefix(envelope, []byte("From ")) {
		return Metadata{}, fmt.Errorf("%w: missing mbox envelope line", ErrParseFailed)
	}
	fields := strings.SplitN(string(envelope), " ", 3)
	if len(fields) < 2 || fields[1] == "" {
		return Metadata{}, fmt.Errorf("%w: envelope line has no commit id", ErrParseFailed)
	}
	commitID := fields[1]

	msg, err := mail.ReadMessage(bytes.NewReader(rest))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	subject := strings.ReplaceAll(msg.Header.Get("Subject"), "\n", "")
	if subject == "" {
		return Metadata{}, fmt.Errorf("%w: empty subject", ErrParseFailed)
	}

	body, err := io.ReadAll(msg.Body)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: reading payload: %v", ErrParseFailed, err)
	}

	return Metadata{
		CommitID: commitID,
		Author:   msg.Header.Get("From"),
		Date:     msg.Header.Get("Date"),
		Subject:  subject,
		Files:    filesFromDiff(body),
	}, nil
}

// filesFromDiff lists the paths a patch body touches, in diff order.
func filesFromDiff(body []byte) []string {
	sec := diffSection(body)
	if len(sec) == 0 {
		return nil
	}

	fds, err := diff.NewMultiFileDiffReader(bytes.NewReader(sec)).ReadAllFiles()
	if err == nil {
		files := make([]string, 0, len(fds))
		for _, fd := range fds {
			name := fd.NewName
			if name == "" || name == "/dev/null" {
				name = fd.OrigName
			}
			name = strings.TrimPrefix(name, "a/")
			name = strings.TrimPrefix(name, "b/")
			files = append(files, name)
		}
		return files
	}

	// Hand-edited patches sometimes fail the strict parser; fall back to
	// scanning the `diff --git a/... b/...` header lines.
	return scanDiffFiles(sec)
}

// scanDiffFiles extracts paths from `diff` header lines, taking the old-side
// name and dropping its two-character prefix.
func scanDiffFiles(sec []byte) []string {
	var files []string
	for _, line := range strings.Split(string(sec), "\n") {
		if !strings.HasPrefix(line, "diff ") {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) < 3 || len(fields[2]) < 3 {
			continue
		}
		files = append(files, fields[2][2:])
	}
	return files
}

// diffSection isolates the unified diff from the commit message that
// precedes it and the signature trailer that can follow it.
func diffSection(body []byte) []byte {
	start := 0
	if !bytes.HasPrefix(body, []byte("diff ")) {
		i := bytes.Index(body, []byte("\ndiff "))
		if i < 0 {
			return nil
		}
		start = i + 1
	}
	sec := body[start:]
	if j := bytes.Index(sec, []byte("\n-- \n")); j >= 0 {
		sec = sec[:j+1]
	}
	return sec
}
