// Package updates resolves the latest distributable APK.
//
// The publisher writes a JSON manifest to the blob store:
//
//	{"apkPath": "releases/app-42.apk", "versionCode": 42, "versionName": "1.4.2", "sha256": "..."}
//
// Resolver.ResolveLatest downloads it, checks apkPath and versionCode, and
// returns the descriptor with a presigned URL for apkPath in place of the path.
package updates
