/*
Package usgeo holds the static US geography tables the pipeline checks
coordinates and addresses against.

Everything here is data, not network: state name/code normalization,
approximate per-state bounding boxes and centroids, ZIP-prefix to
state allocation, the continental plausibility envelope, and the
null-island check. Lookups cover the 50 states, DC, and Puerto Rico.

The validator uses the envelope and the per-state boxes to price
implausible coordinates into a record's score, and the ZIP tables to
catch a ZIP that contradicts its claimed state. The geocoder's
centroid fallback answers from the state centroid table when every
HTTP provider comes up empty.

The boxes are deliberately loose. They answer "could this coordinate
plausibly be in Texas", not "is it in Texas"; precise containment
would need polygon data this package intentionally avoids carrying.
*/
package usgeo
