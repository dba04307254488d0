// Package staging reclaims per-operation scratch directories under the
// configured temp_dir.
//
// Workers, the frame extractor and the stitcher each create a private
// directory (job-*, stitch-*, concat-*) and remove it when they return. A
// process that exits mid-job leaves its directory behind; the daemon sweeps
// those at startup once it holds the instance lock.
package staging
