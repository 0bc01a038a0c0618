// Package token implements query tokens: typed paths into the rows of a
// logical query ("Customer.Name", "Lines.Element.Quantity",
// "OrderDate.Year", "Total.Sum").
//
// A Catalog discovers the subtokens of a token from the schema, filters
// them through an Authorizer, sorts them and caches the result. Parse walks
// a full key segment by segment through the same discovery, so anything
// Parse accepts is also listed by SubTokens.
//
// Tokens turn into expressions through BuildExpression, which consults
// the caller's Context before falling back to the token's own rule. After
// a projection the context binds every kept token to a tuple slot, so the
// same token keeps working across shape changes.
//
// CRITICAL PATTERNS:
//
// Sort contract: SubTokens orders Id first, then ToString, then type casts
// "(Entity)", then by display text under English collation. Clients rely
// on this order.
//
// Identity: tokens are equal by (QueryName, FullKey). Compare with Equal,
// never with ==.
//
// Dominance: Dominates(a, b) holds when b is reached from a through
// single-valued steps only. Grouping uses it to drop redundant keys.
package token
