// Package secrets redacts credentials from generated documents.
//
// Model output can echo keys that appear in an idea or in upstream
// documents. Every artifact passes through a Redactor before it reaches the
// shared context, the store or the export directory. Findings keep the rule
// id and position but never the matched value.
package secrets
