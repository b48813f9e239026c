// Package spider decides which discovered URLs are worth fetching.
//
// # Tracker
//
// Tracker holds the only shared mutable state of a scan: the set of URLs
// already seen, the number of links taken from each page, the set of event
// keys already emitted, and whether the scan has been stopped. Every
// transaction handler goes through the same Tracker, and every update is made
// under one mutex, so a URL can never be promoted twice.
//
// For each discovered URL the tracker computes:
//
//   - web spider distance: the parent's distance plus one per page crossed
//     (redirects cost nothing)
//   - scope distance: 0 for in-scope URLs, otherwise max(oracle, parent+1)
//   - tags: spider-max when a distance, depth or per-page cap is exceeded,
//     in-scope, target, redirect, speculated, extension-blacklisted
//   - whether the URL is promoted to the fetch queue
//
// A URL that is over a cap is still reported as URL_UNVERIFIED. It is only
// kept out of the fetch queue.
//
// # Usage
//
//	tracker := spider.NewTracker(oracle,
//	    spider.WithMaxDistance(1),
//	    spider.WithMaxDepth(1),
//	    spider.WithLinksPerPage(25),
//	)
//	seed, _ := tracker.Seed("http://127.0.0.1:8888/")
//	decision, ok := tracker.Evaluate(spider.Candidate{URL: u, Source: response})
package spider
