// Package crawler defines the page keys, extracted records and collaborator
// interfaces shared by the fetchers, caches, extractors and sinks.
package crawler
