// Package handlerregistry binds a WorkItem's type tag to one of several
// processing strategies, and exposes a single dispatch entry point used by
// the dispatcher package.
package handlerregistry
