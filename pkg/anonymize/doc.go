/*
Package anonymize is the PII scrubbing engine.

Columns are bound to rules by matching an ordered list of
case-insensitive name patterns; the first match governs, unmatched
columns pass through. Five strategies: synthetic (fake values of a
declared shape), hash (salted digest prefix), token (per-rule
counter), null, passthrough.

# Consistency

The consistency map guarantees that one original value always maps to
one anonymized value, keyed "rule_name:original". That keeps joins
through anonymized columns intact: two tables holding the same email
end up holding the same fake email. The map persists atomically in the
output directory and is reloaded at phase start, so repeated runs of
the same district stay stable.

Null inputs stay null under every strategy, and the null strategy
refuses FK columns, preserving nullability and join semantics.

# Leak scan

After transforming, each governed column is spot-checked: up to ten
non-null values against the family's sentinel (synthetic email domain
for email columns, minimum length for name columns). Findings fail the
phase but never mutate data and never echo suspect values into
reports.
*/
package anonymize
