package gql

// Schema is the GraphQL schema served at /graphql
const Schema = `
schema {
	query: Query
	mutation: Mutation
}

type User {
	id: ID!
	name: String!
	email: String!
	phone_number: String!
	role: String!
	createdAt: String!
	updatedAt: String!
}

input RegisterDto {
	name: String
	email: String
	password: String
	phone_number: String
}

input ActivationDto {
	activationToken: String!
	activationCode: String!
}

type ErrorType {
	message: String!
	code: String
}

type RegisterResponse {
	activation_token: String!
}

type ActivationResponse {
	user: User
}

type LoginResponse {
	user: User
	accessToken: String
	refreshToken: String
	error: ErrorType
}

type LogOutResponse {
	message: String!
}

type Query {
	getLoggedInUser: LoginResponse!
	logOut: LogOutResponse!
	getUsers: [User!]!
}

type Mutation {
	register(registerDto: RegisterDto!): RegisterResponse!
	activateUser(activationDto: ActivationDto!): ActivationResponse!
	login(email: String!, password: String!): LoginResponse!
}
`
