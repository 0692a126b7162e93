// Package model describes the base objects manipulated by revstore.
//
// The object model for revstore is composed of:
//
//  Branches:
//    Branches form a tree rooted at MAIN. A branch starts from a point in time of its parent
//    (its base) and sees every component of its ancestors as of that point, until it overwrites them.
//
//  Branch points:
//    A branch paired with a logical timestamp identifies a read-only historical view.
//
//  Revisions:
//    A revision is the state of one component on one branch, valid during a segment of time.
//    Components are opaque records: an id, a type and string attributes described by a Schema.
//
//  Commits:
//    A commit is the atomic set of revisions written on a branch at a given timestamp.
//
//  Merges:
//    A merge applies the changes of a source branch point onto a target branch, or reports
//    the conflicts preventing it.
//
//  Reviews:
//    A review is an asynchronously computed preview of the changes a merge would apply.
package model
