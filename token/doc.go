// Package token exchanges authorization codes and refresh tokens at a token
// endpoint and normalizes the responses.
//
// The raw response keeps every field the provider returned. Normalize turns
// it into a Result: the expiry becomes a formatted UTC date and fields
// outside the standard set are flattened into AdditionalParameters.
//
//	exchanger := token.NewExchanger(logger)
//
//	raw, err := exchanger.Exchange(ctx, httpClient, tokenReq)
//	if err != nil {
//	    var retrieveErr *oauth2.RetrieveError
//	    if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
//	        // the refresh token was revoked
//	    }
//	    return err
//	}
//
//	result := token.Normalize(raw)
package token
