// Package crawler implements the crawl orchestration engine: the URL
// frontier, robots.txt policy cache, fetcher, and the concurrent worker
// pool that ties them together.
package crawler
