package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	libfetchurl "github.com/lucasew/fetchurl"

	"pytc/pkg/httpclient"
)

// Downloader writes the bytes behind a URL to out.
type Downloader interface {
	Name() string
	Download(ctx context.Context, url, sha256 string, out io.Writer) error
}

// errSkip tells the fetcher to move on to the next downloader without
// counting the attempt as failed.
var errSkip = errors.New("downloader not applicable")

// fetchurlDownloader performs hash-addressed downloads through fetchurl. The
// configured mirrors are asked for the hash first, then the source url is
// fetched directly. It only applies when the checksum is known.
type fetchurlDownloader struct {
	fetcher *libfetchurl.Fetcher
}

func newFetchurlDownloader(client *http.Client, mirrors []string) *fetchurlDownloader {
	fetcher := libfetchurl.NewFetcher(client)
	fetcher.Servers = mergeServers(mirrors, serversFromEnv(), fetcher.Servers)
	return &fetchurlDownloader{fetcher: fetcher}
}

// serversFromEnv reads FETCHURL_SERVERS, a comma-separated list of mirror
// base urls such as "https://mirror1.example.com,https://mirror2.example.com".
func serversFromEnv() []string {
	env := os.Getenv("FETCHURL_SERVERS")
	if env == "" {
		return nil
	}
	return strings.Split(env, ",")
}

// mergeServers concatenates the lists in priority order, trimming entries and
// dropping blanks and duplicates.
func mergeServers(lists ...[]string) []string {
	var servers []string
	seen := map[string]bool{}
	for _, list := range lists {
		for _, server := range list {
			server = strings.TrimRight(strings.TrimSpace(server), "/")
			if server == "" || seen[server] {
				continue
			}
			seen[server] = true
			servers = append(servers, server)
		}
	}
	return servers
}

func (d *fetchurlDownloader) Name() string { return "fetchurl" }

func (d *fetchurlDownloader) Download(ctx context.Context, rawURL, sha256 string, out io.Writer) error {
	if sha256 == "" || !strings.HasPrefix(rawURL, "http") {
		return errSkip
	}
	return d.fetcher.Fetch(ctx, libfetchurl.FetchOptions{
		URLs: []string{rawURL},
		Algo: "sha256",
		Hash: sha256,
		Out:  out,
	})
}

// directDownloader does a plain GET; file:// urls are read from disk.
type directDownloader struct {
	client *http.Client
}

func (d *directDownloader) Name() string { return "direct" }

func (d *directDownloader) Download(ctx context.Context, rawURL, _ string, out io.Writer) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}

	if u.Scheme == "file" {
		f, err := os.Open(u.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(out, f)
		return err
	}

	headers := map[string]string{}
	if token := os.Getenv("GITHUB_TOKEN"); token != "" && isGitHubHost(u.Host) {
		headers["Authorization"] = "Bearer " + token
	}
	resp, err := httpclient.Get(ctx, d.client, rawURL, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

func isGitHubHost(host string) bool {
	return host == "github.com" || strings.HasSuffix(host, ".github.com") || strings.HasSuffix(host, ".githubusercontent.com")
}

// permanent reports whether a download error will not go away on retry.
func permanent(err error) bool {
	var status *httpclient.StatusError
	if errors.As(err, &status) {
		return status.Permanent()
	}
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled)
}
