// Package fold folds assert and retract witnesses for a transaction into
// asserted, retracted and altered buckets.
//
// Folding is order-sensitive: the same witnesses in a different order can
// fold differently, but replaying one sequence always yields the same
// buckets. An altered entry keeps the first old value it saw and the most
// recent new value. Asserting and then retracting the same value folds to
// altered (v, v); callers that compute a persisted net effect treat that
// as no change.
package fold
