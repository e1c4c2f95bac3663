/*
Package validate runs the pre-load quality gate over staged data.

Five check families: schema (null survey), referential integrity,
business rules, completeness, and data quality. The overall status is
FAILED when any family reports an error, PASSED_WITH_WARNINGS when
only warnings exist, PASSED otherwise. A FAILED report stops the
pipeline before anything touches a target store.

Referential integrity prefers declared FK metadata from the schema
analysis; without it, a *_id column is matched to the first staged
dataset whose name contains the naive plural of its base. Unresolvable
references count as passed, not failed.

Business-rule predicates are parsed by the closed expression language
in expr.go. Conditions are configuration, not code; nothing is
evaluated dynamically.
*/
package validate
