// Package archive uploads rendered reports to S3-compatible object storage.
//
// Object keys follow {prefix}/{kind}/{range-start}-{report-id}.{ext} so
// a bucket listing reads like a calendar of report runs.
//
// Design decision: We use the AWS SDK v2 with an optional BaseEndpoint
// override rather than a storage-specific client because:
// 1. One client covers both AWS S3 and MinIO-style deployments
// 2. Credentials flow through the standard AWS chain, with an
//    environment-variable override for static keys
// 3. Path-style addressing keeps bucket names resolvable without DNS
package archive
