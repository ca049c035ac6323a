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
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tdm/vuln-patcher/pkg/logging"
)

const mboxContent = "From 52f23478081ae0dcdb95d1650ea1e7d52d586829 Mon Sep 17 00:00:00 2001\n" +
	"From: Some Dev <dev@example.com>\n" +
	"Date: Tue, 10 Apr 2018 10:00:00 -0700\n" +
	"Subject: [PATCH] foo: fix overflow\n" +
	"\n" +
	"diff --git a/foo.c b/foo.c\n"

func newTestClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:    ts.URL,
		RatePerSec: 1000,
		Logger:     logging.New(logging.Config{Quiet: true}),
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.retryInterval = time.Millisecond
	return c
}

func detailXML(name string) string {
	return fmt.Sprintf(`<vuln_detail>`+
		`<name>"%s"</name>`+
		`<version_min>"4.4"</version_min>`+
		`<version_max>"4.14"</version_max>`+
		`<source>"mainline"</source>`+
		`<comments>""</comments>`+
		`<patch_list><patch version='"4.4"'>"https://feed.example/p?v=4.4"</patch></patch_list>`+
		`</vuln_detail>`, name)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient() error = nil, want missing base URL")
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "payload")
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	body, err := c.get(context.Background(), ts.URL+"/x")
	if err != nil {
		t.Fatalf("get() error = %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("get() = %q, want %q", body, "payload")
	}
	if calls != 3 {
		t.Errorf("server saw %d calls, want 3", calls)
	}
}

func TestGet_ClientErrorIsPermanent(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	_, err := c.get(context.Background(), ts.URL+"/missing")
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("get() error = %v, want ErrFetchFailed", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1 (no retry on 404)", calls)
	}
}

func TestGet_ExhaustsRetries(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := newTestClient(t, ts)
	_, err := c.get(context.Background(), ts.URL+"/x")
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("get() error = %v, want ErrFetchFailed", err)
	}
	if calls != maxTries {
		t.Errorf("server saw %d calls, want %d", calls, maxTries)
	}
}

func TestList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/vuln_list.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "xml" {
			t.Errorf("list request format = %q, want xml", r.URL.Query().Get("format"))
		}
		fmt.Fprint(w, `<vuln_list><vuln id='"CVE-2018-9999"'/><vuln id='"CVE-2017-1"'/></vuln_list>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ids, err := newTestClient(t, ts).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != "CVE-2018-9999" || ids[1] != "CVE-2017-1" {
		t.Errorf("List() = %v", ids)
	}
}

func TestDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/vuln_detail.php", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id"); got != "CVE-2018-9999" {
			t.Errorf("detail request id = %q", got)
		}
		fmt.Fprint(w, detailXML("CVE-2018-9999"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	params, err := newTestClient(t, ts).Detail(context.Background(), "CVE-2018-9999")
	if err != nil {
		t.Fatalf("Detail() error = %v", err)
	}
	if params.Name != "CVE-2018-9999" || params.Source != "mainline" {
		t.Errorf("Detail() = %+v", params)
	}
}

func TestFetchAll(t *testing.T) {
	var list strings.Builder
	list.WriteString("<vuln_list>")
	// Ten ids, listed in an order the numeric-aware sort must undo.
	for i := 10; i >= 1; i-- {
		fmt.Fprintf(&list, `<vuln id='"CVE-2018-%d"'/>`, i)
	}
	list.WriteString("</vuln_list>")

	mux := http.NewServeMux()
	mux.HandleFunc("/vuln_list.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, list.String())
	})
	mux.HandleFunc("/vuln_detail.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailXML(r.URL.Query().Get("id")))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	var progress strings.Builder
	c := newTestClient(t, ts)
	c.progress = &progress

	advs, err := c.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(advs) != 10 {
		t.Fatalf("FetchAll() returned %d advisories, want 10", len(advs))
	}
	for i, want := range []string{"CVE-2018-1", "CVE-2018-2", "CVE-2018-3"} {
		if advs[i].Name() != want {
			t.Errorf("advs[%d] = %q, want %q", i, advs[i].Name(), want)
		}
	}
	if advs[9].Name() != "CVE-2018-10" {
		t.Errorf("advs[9] = %q, want CVE-2018-10", advs[9].Name())
	}

	out := progress.String()
	if !strings.HasPrefix(out, "Fetching vuln list: ") {
		t.Errorf("progress = %q, want list prefix", out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("progress not newline terminated: %q", out)
	}
	if got := strings.Count(out, "."); got != 1 {
		t.Errorf("progress has %d dots, want 1 per ten advisories", got)
	}
}

func TestFetchAll_DetailFailureIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/vuln_list.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<vuln_list><vuln id='"CVE-1"'/><vuln id='"CVE-2"'/></vuln_list>`)
	})
	mux.HandleFunc("/vuln_detail.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "CVE-2" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, detailXML("CVE-1"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := newTestClient(t, ts).FetchAll(context.Background())
	if !errors.Is(err, ErrFetchFailed) {
		t.Errorf("FetchAll() error = %v, want ErrFetchFailed", err)
	}
}

func TestFetchContent(t *testing.T) {
	t.Run("raw_mbox", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, mboxContent)
		}))
		defer ts.Close()

		got, err := newTestClient(t, ts).FetchContent(context.Background(), ts.URL+"/p")
		if err != nil {
			t.Fatalf("FetchContent() error = %v", err)
		}
		if string(got) != mboxContent {
			t.Errorf("FetchContent() = %q", got)
		}
	})

	t.Run("base64_transport", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, base64.StdEncoding.EncodeToString([]byte(mboxContent)))
		}))
		defer ts.Close()

		got, err := newTestClient(t, ts).FetchContent(context.Background(), ts.URL+"/p")
		if err != nil {
			t.Fatalf("FetchContent() error = %v", err)
		}
		if string(got) != mboxContent {
			t.Errorf("FetchContent() = %q", got)
		}
	})

	t.Run("wrapped_base64", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(mboxContent))
		var wrapped strings.Builder
		for len(encoded) > 60 {
			wrapped.WriteString(encoded[:60] + "\n")
			encoded = encoded[60:]
		}
		wrapped.WriteString(encoded + "\n")

		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, wrapped.String())
		}))
		defer ts.Close()

		got, err := newTestClient(t, ts).FetchContent(context.Background(), ts.URL+"/p")
		if err != nil {
			t.Fatalf("FetchContent() error = %v", err)
		}
		if string(got) != mboxContent {
			t.Errorf("FetchContent() = %q", got)
		}
	})

	t.Run("garbage_transport", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "neither mbox nor base64!!!")
		}))
		defer ts.Close()

		_, err := newTestClient(t, ts).FetchContent(context.Background(), ts.URL+"/p")
		if !errors.Is(err, ErrParseFailed) {
			t.Errorf("FetchContent() error = %v, want ErrParseFailed", err)
		}
	})
}

func TestFetchContent_CacheAvoidsRefetch(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		fmt.Fprint(w, mboxContent)
	}))
	defer ts.Close()

	cache, err := OpenCache(InMemoryCacheConfig())
	if err != nil {
		t.Fatalf("OpenCache() error = %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	c := newTestClient(t, ts)
	c.cache = cache

	ref := ts.URL + "/p"
	for i := 0; i < 2; i++ {
		got, err := c.FetchContent(context.Background(), ref)
		if err != nil {
			t.Fatalf("FetchContent() #%d error = %v", i+1, err)
		}
		if string(got) != mboxContent {
			t.Errorf("FetchContent() #%d = %q", i+1, got)
		}
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1 (second read from cache)", calls)
	}
}
