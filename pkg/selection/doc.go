// Package selection implements the bulk selection model used by the
// admin surface: click, shift-click, select-all-visible, and the
// server-evaluated select-all-matching over paginated, filtered user
// listings.
//
// All transforms are pure: they take a Set and return a new one, so a
// caller can keep the previous selection for undo or comparison. The
// PageCache memoizes listing pages keyed by (filters, page) and is
// invalidated wholesale whenever a mutation refreshes the listing.
package selection
