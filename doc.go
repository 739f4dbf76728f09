/*
Package s3sign provides AWS Signature Version 4 request signing and
credential resolution for talking to S3-compatible object stores, without
depending on the AWS SDK.

Philosophy

Most of what an S3 client needs from the AWS SDK is a small, stable surface:
figure out which credentials apply, sign a request with them, and retry
sensibly when S3 says "wrong region" or "wrong endpoint". Pulling in the
full SDK for that is a lot of dependency weight and API surface you never
call. s3sign carries just that slice, split into small packages that can be
used independently:

  * credchain resolves credentials the way the AWS CLI/SDKs do: static
    config, config-file profiles (including role assumption), EC2/ECS
    instance metadata, and web identity tokens, in the documented order
  * sigv4 implements the SigV4 canonical request, signing key derivation,
    and Authorization header construction
  * s3handle ties a bucket/key URI, a credential chain, and the local
    per-bucket endpoint/region cache together into something that can sign
    a request or produce a presigned URL, and that knows how to adapt
    itself when S3 returns a redirect or region-mismatch error

Usage

  h, err := s3handle.NewHandle(ctx, "my-bucket/path/to/object.csv")
  headers, err := h.GetHeaders(ctx, "GET", nil, nil)
  url, err := h.GetSignedURL(ctx, s3handle.GetSignedURLOptions{ExpirationSeconds: 3600})

Scope

s3sign signs and resolves credentials. It does not perform HTTP requests
itself (see fetch.Fetcher for the seam a caller plugs a client into), and it
does not implement a filesystem, object listing, multipart upload, or any
other S3 API beyond what's needed to build a correctly signed request.
*/
package s3sign
