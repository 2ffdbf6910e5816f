// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	zsync "github.com/c4milo/zsync"
)

// cli is the flag surface from spec §6: -o output path, -i repeatable seed
// file, -k save-control-file path, -u referer URL for resolving relative
// URLs in the control file.
var cli struct {
	Output  string   `short:"o" help:"Final output path; defaults to the control file's Filename header."`
	Seeds   []string `short:"i" help:"Add a seed file to search for matching blocks. May be repeated." type:"path"`
	Save    string   `short:"k" help:"Save the fetched control file to this path."`
	Referer string   `short:"u" help:"Referer used when resolving relative URLs in the control file."`

	Source string `arg:"" help:"Path or URL to the .zsync control file."`
}

// httpClient stops at the first redirect response instead of following it
// automatically, so zsync.FollowRedirects can inspect every hop itself
// (spec §6, §8 scenarios G-I).
var httpClient = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func main() {
	kong.Parse(&cli, kong.Description("Reconstruct a file from a zsync control file and local seeds."))

	if err := run(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "zsync:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctrl, finalSourceURL, err := fetchControl(ctx, cli.Source, cli.Referer)
	if err != nil {
		return err
	}

	if cli.Save != "" {
		if err := saveControlCopy(cli.Source, cli.Referer, cli.Save); err != nil {
			fmt.Fprintln(os.Stderr, "zsync: warning: failed saving control file copy:", err)
		}
	}

	resolveRelativeURLs(ctrl, finalSourceURL, cli.Referer)

	output := cli.Output
	if output == "" {
		output = ctrl.Filename
	}
	if output == "" {
		output = "zsync-out"
	}

	log := zsync.NewGlogLogger()
	dir := zsync.NewOSTempDir(filepath.Dir(absPath(output)))

	session, err := zsync.Begin(ctrl, dir, log)
	if err != nil {
		return err
	}

	seeds := cli.Seeds
	if _, err := os.Stat(output); err == nil {
		seeds = append([]string{output}, seeds...)
	}

	// Stat seeds concurrently up front so a missing/unreadable seed is
	// reported before any scanning starts; SubmitSeedFile itself always
	// runs single-threaded against the session (spec §5).
	var g errgroup.Group
	for _, seed := range seeds {
		seed := seed
		g.Go(func() error {
			if _, statErr := os.Stat(seed); statErr != nil {
				fmt.Fprintf(os.Stderr, "zsync: warning: seed %s: %v\n", seed, statErr)
			}
			return nil
		})
	}
	g.Wait()

	progress := zsync.NewBarProgressWriter()
	bar := progress.NewBytesProgress(ctrl.Length, "scanning seeds")
	for _, seed := range seeds {
		if err := session.SubmitSeedFile(ctx, seed); err != nil {
			return err
		}
	}
	bar.Add(int(ctrl.Length - session.BlocksTodo()*ctrl.BlockSize))
	bar.Close()

	partPath := output + ".part"
	if err := session.RenameScratch(partPath); err != nil {
		return err
	}

	if session.Status() != zsync.StatusComplete {
		fetcher := zsync.NewHTTPRangeFetcher(httpClient)
		if err := session.FetchRemaining(ctx, fetcher); err != nil {
			return err
		}
	}

	verdict, err := session.Complete()
	if err != nil {
		return err
	}
	fmt.Printf("zsync: %s (%s)\n", verdict, humanize.Bytes(uint64(ctrl.Length)))

	if err := session.Finalize(output); err != nil {
		return err
	}
	fmt.Println("zsync: wrote", output)
	return nil
}

func absPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func fetchControl(ctx context.Context, source, referer string) (*zsync.Control, string, error) {
	r, closeFn, finalURL, err := openSource(ctx, source, referer)
	if err != nil {
		return nil, "", err
	}
	defer closeFn()
	ctrl, err := zsync.ParseControl(r)
	if err != nil {
		return nil, "", err
	}
	return ctrl, finalURL, nil
}

func saveControlCopy(source, referer, dest string) error {
	r, closeFn, _, err := openSource(context.Background(), source, referer)
	if err != nil {
		return err
	}
	defer closeFn()

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	return err
}

// openSource opens source, returning its final resolved URL when source was
// itself a URL (spec §8 scenario G: subsequent block URLs are resolved
// relative to the final location of a redirected control URL, not the
// original one).
func openSource(ctx context.Context, source, referer string) (io.Reader, func(), string, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, finalURL, err := zsync.FollowRedirects(ctx, httpClient, source, func(req *http.Request) {
			if referer != "" {
				req.Header.Set("Referer", referer)
			}
		})
		if err != nil {
			return nil, nil, "", fmt.Errorf("fetching control file: %w", err)
		}
		return resp.Body, func() { resp.Body.Close() }, finalURL, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, nil, "", err
	}
	return f, func() { f.Close() }, source, nil
}

// resolveRelativeURLs rewrites any control-file URL lacking a scheme into
// an absolute one, resolved against referer when it is set, otherwise
// against source (if it was itself a URL) (spec §6: "-u sets the Referer
// used when resolving relative URLs").
func resolveRelativeURLs(ctrl *zsync.Control, source, referer string) {
	base := referer
	if base == "" {
		base = source
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return
	}
	for i, u := range ctrl.URLs {
		parsed, err := url.Parse(u)
		if err != nil || parsed.IsAbs() {
			continue
		}
		ctrl.URLs[i] = baseURL.ResolveReference(parsed).String()
	}
}
