// Package storage defines the persistence capabilities gatehouse depends on.
//
// Profile access is split by privilege: the role authorizer only receives a
// ProfileReader, while the ban mutator and the reconciler receive a
// ProfileWriter. Blob access is split the same way into ObjectReader and
// URLSigner.
//
// Implementations live in subpackages:
//
//   - storage/postgres: ProfileStore over lib/pq with primary/replica routing
//   - storage/blob: S3Store over aws-sdk-go-v2, including presigned URLs
package storage
