// Package district ranks migration candidates. Districts are filtered
// by selection criteria, scored on size, activity, completeness, and
// business priority, ranked, and a three-district pilot set is picked
// covering each size category.
package district
