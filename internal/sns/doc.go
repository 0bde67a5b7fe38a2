// Package sns emulates the SMS subset of the AWS SNS query protocol.
//
// The [Dispatcher] reads the Action parameter from the query string or the
// request body, runs the matching handler and renders the resulting
// envelope in the format the client negotiated. Two actions are modeled:
//
//   - Publish: validates PhoneNumber and Message and stores the SMS
//   - SetSMSAttributes: updates the attribute registry
//
// Every other action is rejected with an InvalidAction error. Client
// mistakes become Sender errors with status 400; anything else, including
// a panic inside a handler, becomes a Receiver InternalFailure with status
// 500 and is logged.
package sns
