// Package cluskit provides approximate and exact nearest-neighbor search
// over high-dimensional points, and two clustering algorithms built on top
// of it: a single-pass streaming k-means for unbounded inputs and a batch
// ball k-means for refining small weighted point sets.
//
// The engine is organized as three packages:
//
//   - distance: distance metrics over gonum mat.Vector values.
//   - search: the Searcher contract and its four interchangeable
//     implementations (Brute, Projection, FastProjection, LSH), trading
//     recall for speed.
//   - cluster: Centroid, StreamingKMeans, BallKMeans and a Pipeline helper
//     that runs one streaming clusterer per input partition and refines
//     the union of their centroids in a single batch pass.
//
// All vector arithmetic is delegated to gonum; the engine works with any
// mat.Vector implementation and never assumes a concrete representation
// for caller-supplied points.
package cluskit
