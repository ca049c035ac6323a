// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine drives the per-advisory reconciliation decision.
//
// # Description
//
// The engine walks the advisory list in order and decides, for each one,
// whether the target tree is already remediated, can be remediated
// automatically, or needs the operator. Applicability is filtered first
// (version range, source identifier, empty patch set), then a patch is
// selected: the key matching the target version exactly, otherwise a
// forward port (greatest key below target), otherwise a backward port
// (least key above target). The selected patch runs through a fixed probe
// ladder: reverses cleanly, in git history, dry-run verdict, integrated
// apply, manual recovery.
//
// All operator-facing text goes to the configured output writer as a flat
// one-line-per-advisory stream; the structured outcome of every advisory,
// including the filtered ones, lands in a report.Summary.
//
// # Thread Safety
//
// An Engine is single-threaded. Working-tree mutation cannot be
// parallelized and prompts block until answered, so Run must not be
// invoked concurrently.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tdm/vuln-patcher/pkg/logging"
	"github.com/tdm/vuln-patcher/services/patcher/advisory"
	"github.com/tdm/vuln-patcher/services/patcher/history"
	"github.com/tdm/vuln-patcher/services/patcher/patch"
	"github.com/tdm/vuln-patcher/services/patcher/report"
	"github.com/tdm/vuln-patcher/services/patcher/vcs"
	"github.com/tdm/vuln-patcher/services/patcher/version"
)

// =============================================================================
// Errors
// =============================================================================

// ErrRecoveryFailed marks an unrecoverable failure inside manual recovery.
// The tree is mid-merge at that point, so the run aborts and leaves the
// repair to the operator; continuing to the next advisory would stack a
// second merge on top of a broken one.
var ErrRecoveryFailed = errors.New("manual recovery failed")

// =============================================================================
// Types
// =============================================================================

// Prompter asks the operator one question and returns the reply.
// *ux.Prompter satisfies it.
type Prompter interface {
	Ask(prompt string) (string, error)
}

// Config assembles an Engine's collaborators and mode flags.
type Config struct {
	// Toolchain executes the tree probes and mutations. Required.
	Toolchain vcs.Toolchain

	// History is the prebuilt commit-subject index. Required.
	History *history.Index

	// Prompter supplies operator replies. Required unless NonInteractive.
	Prompter Prompter

	// Out receives the advisory stream and recovery prompts. Defaults to
	// os.Stdout.
	Out io.Writer

	// Logger receives operational events. Defaults to the shared logger.
	Logger *logging.Logger

	// DryRun stops the ladder at the apply probe; nothing mutates.
	DryRun bool

	// NonInteractive answers every decision with "skip" instead of
	// prompting.
	NonInteractive bool
}

// Engine applies the decision procedure to one advisory list.
type Engine struct {
	tools          vcs.Toolchain
	hist           *history.Index
	prompter       Prompter
	out            io.Writer
	log            *logging.Logger
	dryRun         bool
	nonInteractive bool
}

// =============================================================================
// Construction
// =============================================================================

// New validates cfg and builds an Engine.
//
// # Inputs
//
//   - cfg: Collaborators and mode flags; see Config
//
// # Outputs
//
//   - *Engine: Ready to Run
//   - error: Missing required collaborator
func New(cfg Config) (*Engine, error) {
	if cfg.Toolchain == nil {
		return nil, errors.New("toolchain is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history index is required")
	}
	if cfg.Prompter == nil && !cfg.NonInteractive {
		return nil, errors.New("prompter is required in interactive mode")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}

	return &Engine{
		tools:          cfg.Toolchain,
		hist:           cfg.History,
		prompter:       cfg.Prompter,
		out:            out,
		log:            log.With("component", "engine"),
		dryRun:         cfg.DryRun,
		nonInteractive: cfg.NonInteractive,
	}, nil
}

// =============================================================================
// Run
// =============================================================================

// Run processes every advisory against the target tree and returns the
// run's summary.
//
// # Description
//
// Advisories are processed strictly in the given order (the feed client
// returns them presorted). A fetch or parse failure stops only the
// advisory it happened on; a failure inside manual recovery, an exhausted
// operator input, or context cancellation stops the run. The returned
// summary is always non-nil and sealed, so callers can render what was
// completed even on an aborted run.
//
// # Inputs
//
//   - ctx: Cancellation is honored between external actions, never
//     mid-apply
//   - target: The tree's detected "major.minor" version
//   - sources: Detected source identifier set (kernel.DetectSources)
//   - advisories: Presorted advisory list (feed.FetchAll)
//
// # Outputs
//
//   - *report.Summary: Per-advisory entries plus totals, sealed
//   - error: The failure that aborted the run, nil when it completed
func (e *Engine) Run(ctx context.Context, target version.Version, sources map[string]bool, advisories []*advisory.Advisory) (*report.Summary, error) {
	summary := report.New(target.String(), sources, e.dryRun)
	e.log.Info("reconciliation started",
		"target", target.String(),
		"advisories", len(advisories),
		"dry_run", e.dryRun,
		"non_interactive", e.nonInteractive,
	)

	for _, adv := range advisories {
		if err := ctx.Err(); err != nil {
			summary.Finish()
			return summary, err
		}
		entry, err := e.runOne(ctx, target, sources, adv)
		summary.Add(entry)
		if err != nil {
			summary.Finish()
			return summary, err
		}
	}

	summary.Finish()
	e.log.Info("reconciliation finished",
		"applied", summary.Totals.Applied,
		"skipped", summary.Totals.Skipped,
		"failed", summary.Totals.Failed,
		"total", summary.Totals.Total,
	)
	return summary, nil
}

// runOne takes one advisory through filtering, selection, processing and
// the catalog fallback. The returned error, when non-nil, aborts the run;
// the entry is recorded either way.
func (e *Engine) runOne(ctx context.Context, target version.Version, sources map[string]bool, adv *advisory.Advisory) (report.Entry, error) {
	entry := report.Entry{Advisory: adv.Name(), Action: advisory.StatusNone}

	fmt.Fprintf(e.out, "Processing %s", adv.Name())

	if !target.InRange(adv.VersionMin(), adv.VersionMax()) {
		fmt.Fprintf(e.out, " ... Not applicable: %s not in [%s,%s]\n",
			target, adv.VersionMin(), adv.VersionMax())
		entry.Reason = fmt.Sprintf("%s not in [%s,%s]", target, adv.VersionMin(), adv.VersionMax())
		return entry, nil
	}

	if src := adv.Source(); src != "" && !sources[src] {
		fmt.Fprintf(e.out, " ... Not applicable: source %s not found\n", src)
		entry.Reason = fmt.Sprintf("source %s not found", src)
		return entry, nil
	}

	if adv.Patches().Len() == 0 {
		fmt.Fprint(e.out, " No patches\n")
		entry.Reason = "no patches"
		return entry, nil
	}

	if procErr := e.selectAndProcess(ctx, adv, target); procErr != nil {
		if errors.Is(procErr, ErrRecoveryFailed) || ctx.Err() != nil {
			entry.Action = adv.Action()
			entry.Applied = adv.Applied()
			entry.Reason = procErr.Error()
			return entry, procErr
		}
		// Fetch or parse failure: fatal for this advisory only. The
		// catalog below still surfaces whatever is reachable.
		fmt.Fprintf(e.out, " ... Error: %v", procErr)
		adv.SetOutcome(false, advisory.StatusCannotApply)
		entry.Reason = procErr.Error()
		e.log.Warn("advisory processing failed", "advisory", adv.Name(), "error", procErr)
	}

	entry.Action = adv.Action()
	entry.Applied = adv.Applied()
	if entry.Action == advisory.StatusCanApply {
		// The advisory's applied flag is set to keep the verdict off
		// the catalog prompt; the tree itself is untouched.
		entry.Applied = false
	}

	if adv.Applied() {
		fmt.Fprint(e.out, "\n")
		return entry, nil
	}

	resolution, err := e.surfaceCatalog(ctx, adv)
	if err != nil {
		entry.Reason = err.Error()
		return entry, err
	}
	entry.Resolution = resolution
	if resolution == report.ResolutionApplied {
		adv.SetOutcome(true, adv.Action())
		entry.Applied = true
	}
	return entry, nil
}

// selectAndProcess picks the patch key for the target version and runs the
// probe ladder on it. An exact key is authoritative: when it exists, no
// port is attempted regardless of its outcome. Without one, the forward
// port runs first and the backward port only if the advisory still is not
// applied.
func (e *Engine) selectAndProcess(ctx context.Context, adv *advisory.Advisory, target version.Version) error {
	patches := adv.Patches()

	if _, ok := patches.Get(target); ok {
		if err := e.process(ctx, adv, target); err != nil {
			return err
		}
		fmt.Fprintf(e.out, " ... %s", adv.Action())
		return nil
	}

	if !adv.Applied() {
		if pver, ok := patches.GreatestBelow(target); ok {
			fmt.Fprintf(e.out, " ... Try %s", pver)
			if err := e.process(ctx, adv, pver); err != nil {
				return err
			}
			fmt.Fprintf(e.out, " ... %s", adv.Action())
		}
	}

	if !adv.Applied() {
		if pver, ok := patches.LeastAbove(target); ok {
			fmt.Fprintf(e.out, " ... Try %s", pver)
			if err := e.process(ctx, adv, pver); err != nil {
				return err
			}
			fmt.Fprintf(e.out, " ... %s", adv.Action())
		}
	}

	return nil
}

// process runs the probe ladder for one selected patch key and records the
// outcome on the advisory.
//
// # Description
//
// The ladder order is fixed: a clean reverse means the fix is present in
// the tree; a history hit means it was merged at some point; in dry-run
// mode the forward probe is the verdict; otherwise a probe-positive patch
// goes through the integrated mailbox apply, falling back to manual
// recovery when the merge rejects it. Every returned error is a fetch or
// parse failure except the ErrRecoveryFailed chain.
func (e *Engine) process(ctx context.Context, adv *advisory.Advisory, ver version.Version) error {
	p, ok := adv.Patches().Get(ver)
	if !ok {
		return fmt.Errorf("no patch keyed %s", ver)
	}

	reversed, err := p.CanReverse(ctx, e.tools)
	if err != nil {
		return err
	}
	if reversed {
		adv.SetOutcome(true, advisory.StatusAlreadyApplied)
		return nil
	}

	inHistory, err := p.InHistory(ctx, e.hist)
	if err != nil {
		return err
	}
	if inHistory {
		adv.SetOutcome(true, advisory.StatusInHistory)
		return nil
	}

	if e.dryRun {
		can, err := p.CanApply(ctx, e.tools)
		if err != nil {
			return err
		}
		if can {
			// Applied=true keeps the verdict off the manual-catalog
			// path, same as a real application would.
			adv.SetOutcome(true, advisory.StatusCanApply)
		} else {
			adv.SetOutcome(false, advisory.StatusCannotApply)
		}
		return nil
	}

	can, err := p.CanApply(ctx, e.tools)
	if err != nil {
		return err
	}
	if can {
		err := p.Commit(ctx, e.tools)
		if err == nil {
			adv.SetOutcome(true, advisory.StatusAppliedClean)
			e.log.Debug("patch applied", "advisory", adv.Name(), "key", ver.String())
			return nil
		}
		if !errors.Is(err, patch.ErrMergeFailed) {
			return err
		}
		if e.nonInteractive {
			adv.SetOutcome(false, advisory.StatusSkipped)
			return nil
		}
		return e.recoverManually(ctx, adv, p)
	}

	adv.SetOutcome(false, advisory.StatusCannotApply)
	return nil
}

// recoverManually lands a merge-rejected patch with the operator's help:
// raw apply, verification prompt, staging, then finishing the in-progress
// merge. Staging gets one correction prompt; the merge finalization
// reprompts until it goes through.
func (e *Engine) recoverManually(ctx context.Context, adv *advisory.Advisory, p *patch.Patch) error {
	fmt.Fprint(e.out, " Failed, patching manually ...\n")

	if err := p.Apply(ctx, e.tools); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	if _, err := e.prompter.Ask("  Please verify and press enter to continue..."); err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}

	meta, err := p.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	if err := e.tools.Stage(ctx, meta.Files...); err != nil {
		fmt.Fprint(e.out, "  *** Failed to add git files\n")
		if _, err := e.prompter.Ask("  Please add/remove files and press enter: "); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
		}
		if err := e.tools.ContinueMailbox(ctx); err == nil {
			break
		}
		fmt.Fprint(e.out, "  *** Failed to continue merge\n")
		if _, err := e.prompter.Ask("  Please complete merge and press enter: "); err != nil {
			return fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
		}
	}

	fmt.Fprint(e.out, "  ")
	adv.SetOutcome(true, advisory.StatusAppliedManual)
	e.log.Debug("patch applied manually", "advisory", adv.Name())
	return nil
}

// surfaceCatalog prints the advisory's full patch catalog and collects the
// operator's skip-or-applied decision. Metadata that cannot be fetched
// degrades to an empty subject; the reference is always printable.
func (e *Engine) surfaceCatalog(ctx context.Context, adv *advisory.Advisory) (string, error) {
	fmt.Fprint(e.out, " ... Patches:\n")

	patches := adv.Patches()
	for _, ver := range patches.Versions() {
		p, _ := patches.Get(ver)
		subject := ""
		if meta, err := p.Metadata(ctx); err == nil {
			subject = meta.Subject
		}
		fmt.Fprintf(e.out, "  %s: %s\n", ver, subject)
		fmt.Fprintf(e.out, "    %s\n", p.Ref())
	}

	if e.nonInteractive {
		return report.ResolutionSkipped, nil
	}

	reply := ""
	for reply != "a" && reply != "s" {
		line, err := e.prompter.Ask("  Please apply manually. [S]kip or [A]pplied: ")
		if err != nil {
			return "", fmt.Errorf("read operator decision: %w", err)
		}
		if len(line) > 0 {
			reply = strings.ToLower(line[:1])
		} else {
			reply = "s"
		}
	}
	if reply == "a" {
		return report.ResolutionApplied, nil
	}
	return report.ResolutionSkipped, nil
}
