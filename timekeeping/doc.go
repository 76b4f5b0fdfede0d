// Package timekeeping drives the Paylocity web UI through a headless browser.
//
// A flow is always: acquire the account lock, start a Session, Authenticate,
// Perform one Action, Close. Sessions are never pooled or reused. Controls are
// found through ordered XPath candidate lists (see Candidates) because the UI
// is unversioned; the first visible and enabled match wins.
//
// Outcomes are Succeeded, NotAvailable (no usable control, typically because
// the account is already in that state) or Failed. Format turns an Outcome into
// the chat reply; OutcomeFromError does the same for start and login failures.
//
// The browser itself is abstracted by Launcher and Page; package browser
// provides the chromedp implementation.
package timekeeping
